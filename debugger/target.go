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
	"debug/elf"
	"fmt"
	"time"
)

// ThreadHandle is what the debugging facility needs to reach a thread.
type ThreadHandle int

// ExceptionCode identifies the kind of exception; on Linux it is the signal
// number of the stop.
type ExceptionCode int

// ExceptionBreakpoint is the code reported for a trap instruction (SIGTRAP).
const ExceptionBreakpoint ExceptionCode = 5

// ExceptionTrapSignal is a SIGTRAP that no trap instruction raised, such as
// one sent by the debuggee to itself. It is passed on to the debuggee.
const ExceptionTrapSignal ExceptionCode = 1<<8 | 5

// ContinueStatus tells the debugging facility whether an event was
// consumed by the debugger.
type ContinueStatus int

const (
	// NotHandled forwards the event to the debuggee's default handling.
	NotHandled ContinueStatus = iota
	Handled
)

func (s ContinueStatus) String() string {
	if s == Handled {
		return "handled"
	}
	return "not handled"
}

// Event is one debug event. Payload holds exactly one of the event kinds
// below.
type Event struct {
	ProcessID int
	ThreadID  int
	Payload   Payload
}

func (e *Event) String() string {
	return fmt.Sprintf("%T{pid=%d tid=%d %+v}", e.Payload, e.ProcessID, e.ThreadID, e.Payload)
}

type Payload interface {
	isPayload()
}

// ProcessCreated is reported once the debuggee image is mapped and stopped
// before its first instruction.
type ProcessCreated struct {
	ImagePath string
	ImageBase uint64
	Thread    ThreadHandle
}

// ModuleLoaded is reported for a shared object mapped into the debuggee.
type ModuleLoaded struct {
	Path string
	Base uint64
}

type ThreadCreated struct {
	Thread ThreadHandle
}

type ThreadExited struct {
	ExitCode int
}

type Exception struct {
	FirstChance bool
	Code        ExceptionCode
	Address     uint64
}

type ProcessExited struct {
	ExitCode int
}

// Unknown is any event the loop has no use for.
type Unknown struct {
	Description string
}

func (*ProcessCreated) isPayload() {}
func (*ModuleLoaded) isPayload()   {}
func (*ThreadCreated) isPayload()  {}
func (*ThreadExited) isPayload()   {}
func (*Exception) isPayload()      {}
func (*ProcessExited) isPayload()  {}
func (*Unknown) isPayload()        {}

// Context is a thread register context.
type Context interface {
	PC() uint64
	SetPC(pc uint64)
}

// Target is the operating system debugging facility.
type Target interface {
	// WaitForEvent blocks up to timeout; it returns a nil event on timeout.
	WaitForEvent(timeout time.Duration) (*Event, error)
	Continue(processID, threadID int, status ContinueStatus) error
	ReadMemory(processID int, addr uint64, buf []byte) error
	WriteMemory(processID int, addr uint64, data []byte) error
	ThreadContext(thread ThreadHandle) (Context, error)
	SetThreadContext(thread ThreadHandle, ctx Context) error
}

// Process is a Target started by Start.
type Process interface {
	Target
	Pid() int
	Kill() error
	Close() error
}

// LineSource enumerates the source lines of loaded images.
type LineSource interface {
	// LoadModule reads the image mapped at base and returns its machine.
	LoadModule(processID int, path string, base uint64) (elf.Machine, error)
	ForEachLine(processID int, base uint64, fn func(file string, line int, addr uint64) error) error
}
