// Copyright (c) 2026 The Trapcov Authors.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to
// deal in the Software without restriction, including without limitation the
// rights to use, copy, modify, merge, publish, distribute, sublicense, and/or
// sell copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS
// IN THE SOFTWARE.

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/axw/trapcov/internal/log"
	"github.com/axw/trapcov/trapcov/internal/cmdflag"
)

func usage(fs *flag.FlagSet) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "Usage:\n\n\ttrapcov executable reportdir [flags] [-- arguments]\n\n")
		fmt.Fprintf(os.Stderr, "The flags are:\n\n")
		fs.PrintDefaults()
	}
}

// stringList collects the values of a repeatable flag.
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

type options struct {
	executable string
	reportDir  string
	args       []string
	includes   stringList
	excludes   stringList
	sub        bool
	verbose    bool
	timeout    time.Duration
	imports    stringList
	export     string
}

var verbose bool

func errorf(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f, args...)
}

func verbosef(f string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, f, args...)
	}
}

func parseArgs(args []string) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("trapcov", flag.ContinueOnError)
	fs.Usage = usage(fs)
	fs.Var(&opts.includes, "i", "instrument only source files under this path (repeatable)")
	fs.Var(&opts.excludes, "x", "do not instrument source files under this path (repeatable)")
	fs.BoolVar(&opts.sub, "sub", false, "also instrument shared objects loaded by the executable")
	fs.BoolVar(&opts.verbose, "v", false, "verbose")
	fs.DurationVar(&opts.timeout, "timeout", time.Second, "time to wait for each debug event")
	fs.Var(&opts.imports, "import", "merge a Go cover profile of an earlier run (repeatable)")
	fs.StringVar(&opts.export, "export", "", "write the run as a Go cover profile")

	positional, flags, rest := cmdflag.Split(args, "i", "x", "timeout", "import", "export")
	if err := fs.Parse(flags); err != nil {
		return nil, err
	}
	positional = append(positional, fs.Args()...)
	if len(positional) != 2 {
		fs.Usage()
		return nil, fmt.Errorf("expected executable and report directory, got %d arguments", len(positional))
	}
	if opts.timeout <= 0 {
		return nil, fmt.Errorf("invalid timeout %s", opts.timeout)
	}
	opts.executable = positional[0]
	opts.reportDir = positional[1]
	opts.args = rest
	return opts, nil
}

func run(args []string) int {
	opts, err := parseArgs(args)
	if err != nil {
		errorf("%s\n", err)
		return 1
	}
	verbose = opts.verbose
	if err := log.InitLogger(opts.verbose); err != nil {
		errorf("failed to initialise logging: %s\n", err)
		return 1
	}
	defer log.Sync()
	if err := cover(opts); err != nil {
		errorf("%s\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:]))
}
