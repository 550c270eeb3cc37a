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

type fakeContext struct {
	pc uint64
}

func (c *fakeContext) PC() uint64      { return c.pc }
func (c *fakeContext) SetPC(pc uint64) { c.pc = pc }

type continued struct {
	processID, threadID int
	status              ContinueStatus
}

// fakeTarget is a debuggee made of a memory map, a register set per thread
// and a scripted list of events.
type fakeTarget struct {
	memory    map[uint64]byte
	pcs       map[ThreadHandle]uint64
	events    []*Event
	continued []continued
	writes    int
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		memory: make(map[uint64]byte),
		pcs:    make(map[ThreadHandle]uint64),
	}
}

func (t *fakeTarget) WaitForEvent(timeout time.Duration) (*Event, error) {
	if len(t.events) == 0 {
		return nil, nil
	}
	ev := t.events[0]
	t.events = t.events[1:]
	return ev, nil
}

func (t *fakeTarget) Continue(processID, threadID int, status ContinueStatus) error {
	t.continued = append(t.continued, continued{processID, threadID, status})
	return nil
}

func (t *fakeTarget) ReadMemory(processID int, addr uint64, buf []byte) error {
	for i := range buf {
		b, ok := t.memory[addr+uint64(i)]
		if !ok {
			return fmt.Errorf("unmapped address %#x", addr+uint64(i))
		}
		buf[i] = b
	}
	return nil
}

func (t *fakeTarget) WriteMemory(processID int, addr uint64, data []byte) error {
	t.writes++
	for i, b := range data {
		if _, ok := t.memory[addr+uint64(i)]; !ok {
			return fmt.Errorf("unmapped address %#x", addr+uint64(i))
		}
		t.memory[addr+uint64(i)] = b
	}
	return nil
}

func (t *fakeTarget) ThreadContext(thread ThreadHandle) (Context, error) {
	pc, ok := t.pcs[thread]
	if !ok {
		return nil, fmt.Errorf("no thread %d", thread)
	}
	return &fakeContext{pc: pc}, nil
}

func (t *fakeTarget) SetThreadContext(thread ThreadHandle, ctx Context) error {
	t.pcs[thread] = ctx.PC()
	return nil
}

// trap simulates thread executing the trap at addr: the PC ends up one past
// it and an exception is reported.
func (t *fakeTarget) trap(thread ThreadHandle, addr uint64) *Exception {
	t.pcs[thread] = addr + 1
	return &Exception{FirstChance: true, Code: ExceptionBreakpoint, Address: addr}
}

type fakeLine struct {
	file string
	line int
	addr uint64
}

type fakeLines struct {
	machine elf.Machine
	lines   map[uint64][]fakeLine
	loaded  []string
}

func (l *fakeLines) LoadModule(processID int, path string, base uint64) (elf.Machine, error) {
	l.loaded = append(l.loaded, path)
	return l.machine, nil
}

func (l *fakeLines) ForEachLine(processID int, base uint64, fn func(file string, line int, addr uint64) error) error {
	for _, fl := range l.lines[base] {
		if err := fn(fl.file, fl.line, fl.addr); err != nil {
			return err
		}
	}
	return nil
}
