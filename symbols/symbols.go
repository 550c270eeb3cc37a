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

// Package symbols resolves addresses of a debuggee to source lines and
// function symbols using the DWARF information of its ELF images.
package symbols

import (
	"debug/dwarf"
	"debug/elf"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/axw/trapcov"
	"github.com/axw/trapcov/internal/log"
	"github.com/ianlancetaylor/demangle"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Symbol ids carry the module index in their top bits; symbols found only in
// the ELF symbol table have publicBit set and carry their symbol index.
const (
	moduleShift = 48
	publicBit   = 1 << 47
	offsetMask  = publicBit - 1
)

type entry struct {
	tag    dwarf.Tag
	name   string
	parent dwarf.Offset
	// decl is the DW_AT_specification or DW_AT_abstract_origin target.
	decl    dwarf.Offset
	hasDecl bool
}

type funcRange struct {
	low, high uint64
	off       dwarf.Offset
}

type publicSymbol struct {
	low, high uint64
	name      string
}

// segment is a link-time address range [low, high).
type segment struct {
	low, high uint64
}

type module struct {
	index   int
	path    string
	base    uint64
	bias    uint64
	text    []segment
	file    *elf.File
	data    *dwarf.Data
	units   []*dwarf.Entry
	entries map[dwarf.Offset]*entry
	funcs   []funcRange
	publics []publicSymbol
}

// Resolver implements the symbol services the debugger and the aggregator
// need, for every module loaded through LoadModule.
type Resolver struct {
	modules []*module
}

func NewResolver() *Resolver {
	return &Resolver{}
}

// LoadModule reads the ELF image at path, mapped at base. An image without
// debug information loads fine but has no lines.
func (r *Resolver) LoadModule(processID int, path string, base uint64) (elf.Machine, error) {
	f, err := elf.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "opening %s", path)
	}
	m := &module{
		index:   len(r.modules) + 1,
		path:    path,
		base:    base,
		bias:    loadBias(f, base),
		text:    executableSegments(f),
		file:    f,
		entries: make(map[dwarf.Offset]*entry),
	}
	if m.data, err = f.DWARF(); err != nil {
		log.Logger.Warnf("%s: no debug information: %v", path, err)
		m.data = nil
	} else if err := m.readEntries(); err != nil {
		f.Close()
		return 0, errors.Wrapf(err, "reading debug information of %s", path)
	}
	m.loadPublics()
	r.modules = append(r.modules, m)
	return f.Machine, nil
}

// loadBias returns the difference between run-time and link-time addresses.
func loadBias(f *elf.File, base uint64) uint64 {
	if f.Type != elf.ET_DYN {
		return 0
	}
	for _, p := range f.Progs {
		if p.Type == elf.PT_LOAD {
			return base - p.Vaddr&^0xfff
		}
	}
	return base
}

// executableSegments returns the executable PT_LOAD segments of f.
func executableSegments(f *elf.File) []segment {
	var segs []segment
	for _, p := range f.Progs {
		if p.Type == elf.PT_LOAD && p.Flags&elf.PF_X != 0 && p.Memsz > 0 {
			segs = append(segs, segment{low: p.Vaddr, high: p.Vaddr + p.Memsz})
		}
	}
	return segs
}

// executable reports whether the link-time address addr lies in code.
// Sequences discarded by the linker sit at 0 or at an all-ones tombstone.
func (m *module) executable(addr uint64) bool {
	for _, s := range m.text {
		if addr >= s.low && addr < s.high {
			return true
		}
	}
	return false
}

// readEntries indexes subprograms and scopes and collects compile units.
// Every subprogram is kept, declarations included, so specification links
// can always be followed.
func (m *module) readEntries() error {
	var stack []dwarf.Offset
	rd := m.data.Reader()
	for {
		e, err := rd.Next()
		if err != nil {
			return err
		}
		if e == nil {
			break
		}
		if e.Tag == 0 {
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		}
		var parent dwarf.Offset
		if len(stack) > 0 {
			parent = stack[len(stack)-1]
		}
		if e.Tag == dwarf.TagCompileUnit {
			m.units = append(m.units, e)
		}
		if e.Children || e.Tag == dwarf.TagSubprogram {
			m.entries[e.Offset] = newEntry(e, parent)
		}
		if e.Tag == dwarf.TagSubprogram {
			ranges, err := m.data.Ranges(e)
			if err != nil {
				return err
			}
			for _, rg := range ranges {
				if rg[0] < rg[1] {
					m.funcs = append(m.funcs, funcRange{low: rg[0] + m.bias, high: rg[1] + m.bias, off: e.Offset})
				}
			}
		}
		if e.Children {
			stack = append(stack, e.Offset)
		}
	}
	sort.Slice(m.funcs, func(i, j int) bool {
		return m.funcs[i].low < m.funcs[j].low
	})
	return nil
}

func newEntry(e *dwarf.Entry, parent dwarf.Offset) *entry {
	en := &entry{tag: e.Tag, parent: parent}
	en.name, _ = e.Val(dwarf.AttrName).(string)
	if off, ok := e.Val(dwarf.AttrSpecification).(dwarf.Offset); ok {
		en.decl, en.hasDecl = off, true
	} else if off, ok := e.Val(dwarf.AttrAbstractOrigin).(dwarf.Offset); ok {
		en.decl, en.hasDecl = off, true
	}
	return en
}

func (m *module) loadPublics() {
	syms, err := m.file.Symbols()
	if err != nil {
		return
	}
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Value == 0 {
			continue
		}
		size := s.Size
		if size == 0 {
			size = 1
		}
		low := s.Value + m.bias
		m.publics = append(m.publics, publicSymbol{low: low, high: low + size, name: s.Name})
	}
	sort.Slice(m.publics, func(i, j int) bool {
		return m.publics[i].low < m.publics[j].low
	})
}

func (r *Resolver) moduleAt(base uint64) *module {
	for _, m := range r.modules {
		if m.base == base {
			return m
		}
	}
	return nil
}

// ForEachLine calls fn for every statement line entry of the module mapped
// at base, with run-time addresses.
func (r *Resolver) ForEachLine(processID int, base uint64, fn func(file string, line int, addr uint64) error) error {
	m := r.moduleAt(base)
	if m == nil {
		return errors.Errorf("no module loaded at %#x", base)
	}
	if m.data == nil {
		return nil
	}
	for _, cu := range m.units {
		lr, err := m.data.LineReader(cu)
		if err != nil {
			return errors.Wrapf(err, "%s: reading line table", m.path)
		}
		if lr == nil {
			continue
		}
		var le dwarf.LineEntry
		start, keep := true, false
		for {
			if err := lr.Next(&le); err != nil {
				if err == io.EOF {
					break
				}
				return errors.Wrapf(err, "%s: reading line table", m.path)
			}
			if start {
				start = false
				keep = m.executable(le.Address)
				if !keep {
					log.Logger.Debugf("%s: skipping line sequence at %#x outside code", m.path, le.Address)
				}
			}
			if le.EndSequence {
				start = true
				continue
			}
			if !keep || !le.IsStmt || le.File == nil {
				continue
			}
			if err := fn(filepath.Clean(le.File.Name), le.Line, le.Address+m.bias); err != nil {
				return err
			}
		}
	}
	return nil
}

// ResolveSymbol returns the function owning addr. Debug information is
// preferred over the ELF symbol table.
func (r *Resolver) ResolveSymbol(processID int, addr uint64) (trapcov.Symbol, bool) {
	for _, m := range r.modules {
		if off, ok := m.funcAt(addr); ok {
			return trapcov.Symbol{
				ID:   symbolID(m, uint64(off)),
				Name: m.qualifiedName(off),
				Tag:  trapcov.TagFunction,
			}, true
		}
	}
	for _, m := range r.modules {
		if i, ok := m.publicAt(addr); ok {
			return trapcov.Symbol{
				ID:   symbolID(m, uint64(i)|publicBit),
				Name: demangle.Filter(m.publics[i].name, demangle.NoParams),
				Tag:  trapcov.TagPublic,
			}, true
		}
	}
	return trapcov.Symbol{}, false
}

func symbolID(m *module, v uint64) trapcov.SymbolID {
	return trapcov.SymbolID(uint64(m.index)<<moduleShift | v)
}

// funcAt finds the innermost subprogram containing addr: ranges are sorted
// by start, so the first containing range scanning down from addr starts
// latest.
func (m *module) funcAt(addr uint64) (dwarf.Offset, bool) {
	i := sort.Search(len(m.funcs), func(i int) bool {
		return m.funcs[i].low > addr
	})
	for j := i - 1; j >= 0; j-- {
		if f := m.funcs[j]; addr < f.high {
			return f.off, true
		}
	}
	return 0, false
}

func (m *module) publicAt(addr uint64) (int, bool) {
	i := sort.Search(len(m.publics), func(i int) bool {
		return m.publics[i].low > addr
	})
	if i > 0 && addr < m.publics[i-1].high {
		return i - 1, true
	}
	return 0, false
}

// declaration follows specification and abstract origin links to the entry
// that names the function and sits inside its scope.
func (m *module) declaration(off dwarf.Offset) *entry {
	e := m.entries[off]
	for depth := 0; e != nil && e.hasDecl && depth < 8; depth++ {
		d := m.entries[e.decl]
		if d == nil {
			break
		}
		e = d
	}
	return e
}

func isScope(tag dwarf.Tag) bool {
	switch tag {
	case dwarf.TagNamespace, dwarf.TagClassType, dwarf.TagStructType, dwarf.TagUnionType:
		return true
	}
	return false
}

func (m *module) qualifiedName(off dwarf.Offset) string {
	d := m.declaration(off)
	if d == nil {
		return ""
	}
	parts := []string{d.name}
	for p := m.entries[d.parent]; p != nil && isScope(p.tag); p = m.entries[p.parent] {
		name := p.name
		if name == "" {
			name = "(anonymous namespace)"
		}
		parts = append(parts, name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "::")
}

// ResolveClassParent returns the name of the class, struct or union directly
// enclosing the function id.
func (r *Resolver) ResolveClassParent(processID int, id trapcov.SymbolID) (string, bool) {
	v := uint64(id)
	if v&publicBit != 0 {
		return "", false
	}
	idx := int(v >> moduleShift)
	if idx < 1 || idx > len(r.modules) {
		return "", false
	}
	m := r.modules[idx-1]
	d := m.declaration(dwarf.Offset(v & offsetMask))
	if d == nil {
		return "", false
	}
	p := m.entries[d.parent]
	if p == nil || p.name == "" {
		return "", false
	}
	switch p.tag {
	case dwarf.TagClassType, dwarf.TagStructType, dwarf.TagUnionType:
		return p.name, true
	}
	return "", false
}

func (r *Resolver) Close() error {
	var err error
	for _, m := range r.modules {
		err = multierr.Append(err, m.file.Close())
	}
	r.modules = nil
	return err
}
