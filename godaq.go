// Package godaq provides a uniform polling interface over heterogeneous
// data-acquisition hardware. Each supported hardware family is wrapped by a
// device adapter that hides the backend's native access model (blocking
// buffered reads, callback streaming, ring-buffer snapshots, or per-pin
// sampling) behind one synchronous Read/Stop contract returning fixed-shape
// blocks of samples.
package godaq

import (
	"log"
	"os"
	"time"
)

// BuildInfo can contain compile-time information about the build
type BuildInfo struct {
	Version string
	Githash string
	Date    string
}

// Build is a global holding compile-time information about the build
var Build = BuildInfo{
	Version: "0.3.1",
	Githash: "no git hash computed",
	Date:    "no build date computed",
}

// StartTime is a global holding the time init() was run
var StartTime time.Time

// ProblemLogger will log warning messages to a file
var ProblemLogger *log.Logger

func init() {
	StartTime = time.Now()

	// The daqdump main program will override this, but at least initialize
	// with a sensible value.
	ProblemLogger = log.New(os.Stderr, "", log.LstdFlags)
}
