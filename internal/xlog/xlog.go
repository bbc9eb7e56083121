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

// Package xlog centralises the logrus setup shared by every pipeline
// stage, replacing the teacher's scattered `debug bool` + fmt.Printf
// dump gating (compile/compiler.go's DebugPrintAst/DebugDumpSSA consts,
// compile/ssa/graph.go's debug-flagged dumps) with leveled, structured
// logging.
package xlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger. It is still a single shared instance —
// logrus itself is the "diagnostics context handle" for logging, separate
// from diag.Context which carries compiler diagnostics as data.
var Log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: false})
	l.SetLevel(logrus.WarnLevel)
	return l
}

// SetVerbosity maps the CLI's repeated -v flag count to a logrus level:
// 0 = warn, 1 = info, 2+ = debug.
func SetVerbosity(count int) {
	switch {
	case count <= 0:
		Log.SetLevel(logrus.WarnLevel)
	case count == 1:
		Log.SetLevel(logrus.InfoLevel)
	default:
		Log.SetLevel(logrus.DebugLevel)
	}
}

// Phase returns a logger entry tagged with the given pipeline phase name,
// for call sites that want structured fields (func/block) attached.
func Phase(phase string) *logrus.Entry {
	return Log.WithField("phase", phase)
}
