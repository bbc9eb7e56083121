// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Command nyxc is the CLI front end over package compiler: flag parsing,
// file I/O, and the single top-level recovery point (SPEC_FULL.md §6),
// everything spec.md §1 declares out of scope for the core. Grounded on
// the teacher's main.go flag-driven driver, rebuilt on cobra per
// SPEC_FULL.md's domain-stack disposition.
package main

import (
	"fmt"
	"os"

	"github.com/nyxlang/nyxc/codegen/x86"
	"github.com/nyxlang/nyxc/compiler"
	"github.com/nyxlang/nyxc/internal/xlog"
	"github.com/nyxlang/nyxc/ir"
	"github.com/nyxlang/nyxc/isel"
	"github.com/spf13/cobra"
)

var (
	flagOutput   string
	flagTarget   string
	flagCallConv string
	flagVerbose  int
	flagISelFile string
)

func main() {
	root := &cobra.Command{
		Use:   "nyxc",
		Short: "nyxc compiles IR or AST input to an x86-64 object file",
	}
	root.PersistentFlags().CountVarP(&flagVerbose, "verbose", "v", "increase log verbosity (-v, -vv)")

	root.AddCommand(compileCmd(), dumpIRCmd(), iselTableCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func compileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <input.ir>",
		Short: "compile a textual IR program to an ELF or COFF object file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%v", r)
				}
			}()
			xlog.SetVerbosity(flagVerbose)

			input := args[0]
			src, rerr := os.ReadFile(input)
			if rerr != nil {
				return rerr
			}

			var iselSrc string
			if flagISelFile != "" {
				b, rerr := os.ReadFile(flagISelFile)
				if rerr != nil {
					return rerr
				}
				iselSrc = string(b)
			}

			opts := compiler.Options{
				SourceKind: compiler.SourceIR,
				Target:     compiler.TargetX86_64,
				ObjectKind: objectKindFromFlag(flagTarget),
				CallConv:   callConvFromFlag(flagCallConv),
				InputPath:  input,
				OutputPath: flagOutput,
				IRSource:   string(src),
				ISelRules:  iselSrc,
			}
			return compiler.Run(opts)
		},
	}
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "a.o", "output object file path")
	cmd.Flags().StringVar(&flagTarget, "triple", "elf", "object container: elf | coff")
	cmd.Flags().StringVar(&flagCallConv, "callconv", "linux", "calling convention: linux | mswin")
	cmd.Flags().StringVar(&flagISelFile, "isel", "", "path to a .isel rule file (default: no rules, one-to-one lowering only)")
	return cmd
}

// dumpIRCmd parses a textual IR program and reprints it, exercising the
// round-trip property spec.md §8 requires of the printer/parser pair.
func dumpIRCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump-ir <input.ir>",
		Short: "parse then reprint a textual IR program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			fn, err := ir.Parse(string(src))
			if err != nil {
				return err
			}
			fmt.Print(ir.Print(fn))
			return nil
		},
	}
}

// iselTableCmd compiles a standalone .isel DSL file and reports how many
// rules it produced, for inspecting a pattern file without running the
// full pipeline.
func iselTableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "isel-table <rules.isel>",
		Short: "compile a .isel DSL file and report its rule count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%v", r)
				}
			}()
			src, rerr := os.ReadFile(args[0])
			if rerr != nil {
				return rerr
			}
			table := isel.CompileSource(string(src))
			total := 0
			for _, rules := range table.ByLead {
				total += len(rules)
			}
			fmt.Printf("%s: %d rule(s) across %d opcode bucket(s)\n", args[0], total, len(table.ByLead))
			return nil
		},
	}
}

func objectKindFromFlag(s string) compiler.ObjectKind {
	if s == "coff" {
		return compiler.ObjectCOFF
	}
	return compiler.ObjectELF
}

func callConvFromFlag(s string) x86.CallingConvention {
	if s == "mswin" {
		return x86.ConvMSWin
	}
	return x86.ConvLinux
}
