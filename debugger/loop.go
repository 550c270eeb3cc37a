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

package debugger

import (
	"context"
	"debug/elf"
	"time"

	"github.com/axw/trapcov"
	"github.com/axw/trapcov/internal/log"
	"github.com/pkg/errors"
)

// ExitFunc receives the completed address table when the debuggee exits.
type ExitFunc func(processID, exitCode int, table *trapcov.AddressTable) error

// Loop drives one debuggee from creation to exit. It is not safe for
// concurrent use; all events are handled on the caller's goroutine.
type Loop struct {
	target  Target
	lines   LineSource
	table   *trapcov.AddressTable
	threads *ThreadRegistry
	planner *Planner
	traps   *TrapHandler
	onExit  ExitFunc

	processID int
	exitCode  int
	exited    bool
}

func NewLoop(target Target, lines LineSource, filter *Filter, onExit ExitFunc) *Loop {
	table := trapcov.NewAddressTable()
	threads := NewThreadRegistry()
	return &Loop{
		target:  target,
		lines:   lines,
		table:   table,
		threads: threads,
		planner: NewPlanner(target, table, filter),
		traps:   NewTrapHandler(target, table, threads),
		onExit:  onExit,
	}
}

func (l *Loop) Table() *trapcov.AddressTable {
	return l.table
}

// ExitCode returns the debuggee's exit code once it has exited.
func (l *Loop) ExitCode() (int, bool) {
	return l.exitCode, l.exited
}

// Run dispatches events until the debuggee exits or ctx is done.
func (l *Loop) Run(ctx context.Context, timeout time.Duration) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		alive, err := l.WaitAndDispatch(timeout)
		if err != nil {
			return err
		}
		if !alive {
			return nil
		}
	}
}

// WaitAndDispatch waits up to timeout for one event and handles it. It
// reports whether the debuggee is still alive.
func (l *Loop) WaitAndDispatch(timeout time.Duration) (bool, error) {
	if l.exited {
		return false, nil
	}
	ev, err := l.target.WaitForEvent(timeout)
	if err != nil {
		return false, errors.Wrap(err, "waiting for debug event")
	}
	if ev == nil {
		log.Logger.Debugf("no debug event after %s", timeout)
		return true, nil
	}
	status, err := l.dispatch(ev)
	if err != nil {
		return false, err
	}
	if l.exited {
		return false, nil
	}
	if err := l.target.Continue(ev.ProcessID, ev.ThreadID, status); err != nil {
		return false, errors.Wrapf(err, "continuing thread %d", ev.ThreadID)
	}
	return true, nil
}

func (l *Loop) dispatch(ev *Event) (ContinueStatus, error) {
	switch p := ev.Payload.(type) {
	case *ProcessCreated:
		return Handled, l.processCreated(ev, p)
	case *ModuleLoaded:
		return Handled, l.instrument(ev.ProcessID, p.Path, p.Base)
	case *ThreadCreated:
		log.Logger.Debugf("thread %d created", ev.ThreadID)
		return Handled, l.threads.Add(ev.ThreadID, p.Thread)
	case *ThreadExited:
		log.Logger.Debugf("thread %d exited with %d", ev.ThreadID, p.ExitCode)
		return Handled, l.threads.Remove(ev.ThreadID)
	case *Exception:
		return l.traps.Handle(ev.ProcessID, ev.ThreadID, p)
	case *ProcessExited:
		return Handled, l.processExited(ev, p)
	default:
		log.Logger.Debugf("ignoring debug event %s", ev)
		return NotHandled, nil
	}
}

func (l *Loop) processCreated(ev *Event, p *ProcessCreated) error {
	if l.processID != 0 {
		return errors.Errorf("process %d created while debugging %d", ev.ProcessID, l.processID)
	}
	l.processID = ev.ProcessID
	if err := l.threads.Add(ev.ThreadID, p.Thread); err != nil {
		return err
	}
	log.Logger.Infof("process %d started: %s", ev.ProcessID, p.ImagePath)
	return l.instrument(ev.ProcessID, p.ImagePath, p.ImageBase)
}

func (l *Loop) instrument(processID int, path string, base uint64) error {
	machine, err := l.lines.LoadModule(processID, path, base)
	if err != nil {
		return errors.Wrapf(err, "loading %s", path)
	}
	if machine != elf.EM_X86_64 {
		return errors.Errorf("%s: unsupported machine %s", path, machine)
	}
	_, err = l.planner.Instrument(l.lines, processID, path, base)
	return err
}

func (l *Loop) processExited(ev *Event, p *ProcessExited) error {
	if ev.ProcessID != l.processID {
		log.Logger.Debugf("ignoring exit of process %d", ev.ProcessID)
		return nil
	}
	l.exitCode = p.ExitCode
	l.exited = true
	log.Logger.Infof("process %d exited with %d: %d of %d traps hit",
		ev.ProcessID, p.ExitCode, l.table.Visited(), l.table.Len())
	if l.onExit == nil {
		return nil
	}
	return l.onExit(ev.ProcessID, p.ExitCode, l.table)
}
