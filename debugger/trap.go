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
	"github.com/axw/trapcov"
	"github.com/axw/trapcov/internal/log"
	"github.com/pkg/errors"
)

// TrapHandler disarms a trap the first time it fires and lets the faulting
// thread execute the original instruction.
type TrapHandler struct {
	target  Target
	table   *trapcov.AddressTable
	threads *ThreadRegistry
}

func NewTrapHandler(target Target, table *trapcov.AddressTable, threads *ThreadRegistry) *TrapHandler {
	return &TrapHandler{target: target, table: table, threads: threads}
}

// Handle processes an exception. Exceptions that are not first-chance
// breakpoints on one of our traps are NotHandled.
func (h *TrapHandler) Handle(processID, threadID int, ex *Exception) (ContinueStatus, error) {
	if !ex.FirstChance || ex.Code != ExceptionBreakpoint {
		return NotHandled, nil
	}
	a, ok := h.table.Lookup(ex.Address)
	if !ok {
		return NotHandled, nil
	}

	// The original byte must be back before the thread resumes or it traps
	// again. A thread that stopped on the trap while another thread's hit
	// was being handled finds it already restored.
	if !a.Visited {
		if err := h.target.WriteMemory(processID, a.Addr, []byte{a.Original}); err != nil {
			return NotHandled, errors.Wrapf(err, "restoring byte at %s", a)
		}
		a.Visit()
	} else {
		log.Logger.Debugf("thread %d stopped on disarmed trap %s", threadID, a)
	}

	thread, ok := h.threads.Lookup(threadID)
	if !ok {
		return NotHandled, errors.Errorf("breakpoint at %s on unregistered thread %d", a, threadID)
	}
	ctx, err := h.target.ThreadContext(thread)
	if err != nil {
		return NotHandled, errors.Wrapf(err, "reading context of thread %d", threadID)
	}
	// The trap has already executed; point the thread back at the
	// instruction it replaced.
	ctx.SetPC(ctx.PC() - trapcov.TrapWidth)
	if err := h.target.SetThreadContext(thread, ctx); err != nil {
		return NotHandled, errors.Wrapf(err, "writing context of thread %d", threadID)
	}
	return Handled, nil
}
