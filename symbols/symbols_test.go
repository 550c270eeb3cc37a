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

package symbols

import (
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutableSegments(t *testing.T) {
	f := &elf.File{}
	f.Progs = []*elf.Prog{
		{ProgHeader: elf.ProgHeader{Type: elf.PT_LOAD, Flags: elf.PF_R, Vaddr: 0x400000, Memsz: 0x1000}},
		{ProgHeader: elf.ProgHeader{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_X, Vaddr: 0x401000, Memsz: 0x2000}},
		{ProgHeader: elf.ProgHeader{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_W, Vaddr: 0x404000, Memsz: 0x1000}},
		{ProgHeader: elf.ProgHeader{Type: elf.PT_NOTE, Flags: elf.PF_X, Vaddr: 0x0, Memsz: 0x100}},
	}
	m := &module{text: executableSegments(f)}
	assert.Equal(t, []segment{{low: 0x401000, high: 0x403000}}, m.text)

	for _, test := range []struct {
		addr uint64
		code bool
	}{
		// gc-sections leaves discarded sequences at 0
		{0, false},
		// lld tombstone
		{^uint64(0), false},
		{0x400010, false},
		{0x401000, true},
		{0x402fff, true},
		{0x403000, false},
		{0x404010, false},
	} {
		assert.Equal(t, test.code, m.executable(test.addr), "%#x", test.addr)
	}
}
