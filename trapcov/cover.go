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
	"context"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/axw/trapcov"
	"github.com/axw/trapcov/debugger"
	"github.com/axw/trapcov/internal/log"
	"github.com/axw/trapcov/report"
	"github.com/axw/trapcov/symbols"
	"github.com/axw/trapcov/trapcov/convert"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// cover runs the executable under the debugger and writes the report once
// it has exited.
func cover(opts *options) (err error) {
	exe, err := filepath.Abs(opts.executable)
	if err != nil {
		return errors.Wrap(err, "resolving executable")
	}
	resolver := symbols.NewResolver()
	defer func() {
		err = multierr.Append(err, resolver.Close())
	}()

	proc, err := debugger.Start(exe, opts.args, opts.sub)
	if err != nil {
		return errors.Wrapf(err, "starting %s", exe)
	}
	defer func() {
		err = multierr.Append(err, proc.Close())
	}()
	verbosef("debugging %s (pid %d)\n", exe, proc.Pid())

	var coverage *trapcov.Coverage
	onExit := func(processID, exitCode int, table *trapcov.AddressTable) error {
		c, err := convert.Aggregate(processID, table, resolver)
		if err != nil {
			return err
		}
		c.ExitCode = exitCode
		if len(opts.imports) > 0 {
			if err := convert.MergeProfiles(c, opts.imports...); err != nil {
				return err
			}
		}
		if err := publish(opts, c); err != nil {
			return err
		}
		coverage = c
		return nil
	}

	filter := debugger.NewFilter(opts.includes, opts.excludes)
	loop := debugger.NewLoop(proc, resolver, filter, onExit)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := loop.Run(ctx, opts.timeout); err != nil {
		if kerr := proc.Kill(); kerr != nil {
			log.Logger.Debugf("killing %d: %v", proc.Pid(), kerr)
		}
		return err
	}
	if coverage == nil {
		return errors.New("debuggee exited without coverage")
	}

	if opts.verbose {
		if err := trapcov.PrintReport(os.Stdout, coverage); err != nil {
			return err
		}
	}
	printTotal(coverage)
	return nil
}

func printTotal(c *trapcov.Coverage) {
	var covered, coverable int
	for _, fc := range c.Files() {
		n, m := fc.Counts()
		covered += n
		coverable += m
	}
	line := color.New(color.Bold)
	switch report.Level(covered, coverable) {
	case "red":
		line.Add(color.FgRed)
	case "amber":
		line.Add(color.FgYellow)
	case "green":
		line.Add(color.FgGreen)
	}
	line.Printf("Total coverage: %s (%d/%d), exit code %d\n",
		trapcov.FormatPercentage(covered, coverable), covered, coverable, c.ExitCode)
}

// publish writes the exported profile and then the report. A run whose
// report cannot be written leaves no profile behind.
func publish(opts *options, c *trapcov.Coverage) error {
	if opts.export != "" {
		if err := writeProfile(opts.export, c); err != nil {
			return err
		}
	}
	if err := report.NewEmitter(opts.reportDir).Emit(c); err != nil {
		if opts.export != "" {
			err = multierr.Append(err, os.Remove(opts.export))
		}
		return err
	}
	return nil
}

// writeProfile writes the profile next to path and renames it into place.
func writeProfile(path string, c *trapcov.Coverage) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), ".trapcov-*.out")
	if err != nil {
		return errors.Wrap(err, "creating profile")
	}
	defer func() {
		if err != nil {
			os.Remove(f.Name())
		}
	}()
	err = convert.WriteProfile(f, c)
	err = multierr.Append(err, f.Close())
	if err != nil {
		return err
	}
	return errors.Wrap(os.Rename(f.Name(), path), "writing profile")
}
