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

// Package trapcov holds the coverage model built while a native program runs
// under the trapcov debugger: patched addresses, the functions they belong to
// and per-file line statistics.
package trapcov

import (
	"fmt"
	"sort"
)

// TrapOpcode is the one-byte x86 breakpoint instruction (int3).
const TrapOpcode byte = 0xCC

// TrapWidth is the number of bytes the instruction pointer has advanced past
// the trap when the breakpoint exception is reported.
const TrapWidth = 1

// Address is an instruction address in the debuggee that carries a trap.
type Address struct {
	Addr uint64

	// Module is the path of the image the address belongs to.
	Module string

	// Original is the byte the trap replaced.
	Original byte

	// Visited is set once the trap has fired.
	Visited bool

	// Lines maps source file to the lines starting at this address.
	Lines map[string]map[int]bool
}

func NewAddress(addr uint64, module string, original byte) *Address {
	return &Address{
		Addr:     addr,
		Module:   module,
		Original: original,
		Lines:    make(map[string]map[int]bool),
	}
}

func (a *Address) String() string {
	return fmt.Sprintf("%#x", a.Addr)
}

// AddLine attaches a source line to the address.
func (a *Address) AddLine(file string, line int) {
	lines := a.Lines[file]
	if lines == nil {
		lines = make(map[int]bool)
		a.Lines[file] = lines
	}
	lines[line] = lines[line] || a.Visited
}

// Visit marks the address and every line attached to it as covered.
func (a *Address) Visit() {
	a.Visited = true
	for _, lines := range a.Lines {
		for line := range lines {
			lines[line] = true
		}
	}
}

// AddressTable owns every patched address of one debuggee.
type AddressTable struct {
	addrs map[uint64]*Address
}

func NewAddressTable() *AddressTable {
	return &AddressTable{addrs: make(map[uint64]*Address)}
}

func (t *AddressTable) Lookup(addr uint64) (*Address, bool) {
	a, ok := t.addrs[addr]
	return a, ok
}

// Insert registers a new address. An address can only be registered (and
// so patched) once.
func (t *AddressTable) Insert(a *Address) error {
	if _, ok := t.addrs[a.Addr]; ok {
		return fmt.Errorf("address %s already registered", a)
	}
	t.addrs[a.Addr] = a
	return nil
}

func (t *AddressTable) Len() int {
	return len(t.addrs)
}

// Addresses returns the registered addresses in ascending order.
func (t *AddressTable) Addresses() []*Address {
	addrs := make([]*Address, 0, len(t.addrs))
	for _, a := range t.addrs {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].Addr < addrs[j].Addr
	})
	return addrs
}

// Visited returns the number of addresses whose trap has fired.
func (t *AddressTable) Visited() int {
	n := 0
	for _, a := range t.addrs {
		if a.Visited {
			n++
		}
	}
	return n
}

// Percentage returns covered*100/coverable, truncated. ok is false when
// nothing is coverable, in which case coverage is undefined.
func Percentage(covered, coverable int) (percent int, ok bool) {
	if coverable <= 0 {
		return 0, false
	}
	return covered * 100 / coverable, true
}
