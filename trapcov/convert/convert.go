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

// Package convert turns the address table of a finished run into per-module
// function and file coverage.
package convert

import (
	"path/filepath"
	"sort"

	"github.com/axw/trapcov"
	"github.com/axw/trapcov/internal/log"
	"github.com/pkg/errors"
)

// SymbolResolver maps debuggee addresses to function symbols. Absence is
// reported with ok=false and is not an error.
type SymbolResolver interface {
	ResolveSymbol(processID int, addr uint64) (sym trapcov.Symbol, ok bool)
	ResolveClassParent(processID int, id trapcov.SymbolID) (class string, ok bool)
}

type converter struct {
	processID int
	resolver  SymbolResolver
	modules   []*module
	byPath    map[string]*module
	functions map[trapcov.SymbolID]*trapcov.Function
}

type module struct {
	*trapcov.Module
	files map[string]*trapcov.FileCoverage
	// functions in creation order
	functions []*trapcov.Function
}

// Aggregate resolves the owning function of every address, hit or not, and
// builds the coverage of each module. Functions are credited only with the
// lines of addresses resolving to them; same-named functions whose line
// ranges overlap in any file are merged.
func Aggregate(processID int, table *trapcov.AddressTable, resolver SymbolResolver) (*trapcov.Coverage, error) {
	c := &converter{
		processID: processID,
		resolver:  resolver,
		byPath:    make(map[string]*module),
		functions: make(map[trapcov.SymbolID]*trapcov.Function),
	}
	unresolved := 0
	for _, a := range table.Addresses() {
		m := c.module(a.Module)
		for file, lines := range a.Lines {
			fc := m.file(file)
			for line := range lines {
				fc.AddLine(line, a.Visited)
			}
		}
		sym, ok := resolver.ResolveSymbol(processID, a.Addr)
		if !ok {
			log.Logger.Debugf("no symbol for address %s", a)
			unresolved++
			continue
		}
		f, err := c.function(m, sym)
		if err != nil {
			return nil, err
		}
		f.Accumulate(a)
	}
	if unresolved > 0 {
		log.Logger.Warnf("%d addresses without a function symbol", unresolved)
	}

	coverage := &trapcov.Coverage{}
	for _, m := range c.modules {
		m.build()
		coverage.Modules = append(coverage.Modules, m.Module)
	}
	return coverage, nil
}

func (c *converter) module(path string) *module {
	m := c.byPath[path]
	if m == nil {
		m = &module{
			Module: &trapcov.Module{Name: filepath.Base(path), Path: path},
			files:  make(map[string]*trapcov.FileCoverage),
		}
		c.byPath[path] = m
		c.modules = append(c.modules, m)
	}
	return m
}

// function returns the function registered for sym, creating it on first
// sight; the name of the first address resolving to a symbol wins.
func (c *converter) function(m *module, sym trapcov.Symbol) (*trapcov.Function, error) {
	if f := c.functions[sym.ID]; f != nil {
		return f, nil
	}
	class, _ := c.resolver.ResolveClassParent(c.processID, sym.ID)
	f := trapcov.NewFunction(sym.ID, trapcov.NewFunctionKey(sym.Name, class))
	if err := c.register(f); err != nil {
		return nil, err
	}
	m.functions = append(m.functions, f)
	return f, nil
}

func (c *converter) register(f *trapcov.Function) error {
	if _, ok := c.functions[f.ID]; ok {
		return errors.Errorf("symbol %d registered twice", f.ID)
	}
	c.functions[f.ID] = f
	return nil
}

func (m *module) file(path string) *trapcov.FileCoverage {
	fc := m.files[path]
	if fc == nil {
		fc = trapcov.NewFileCoverage(path)
		m.files[path] = fc
	}
	return fc
}

// build orders the module's files by path, merges functions across all
// files and then lists every surviving function in each file it references.
func (m *module) build() {
	m.functions = trapcov.MergeFunctions(m.functions)
	m.Files = m.Files[:0]
	for _, fc := range m.files {
		m.Files = append(m.Files, fc)
	}
	sort.Slice(m.Files, func(i, j int) bool {
		return m.Files[i].Path < m.Files[j].Path
	})
	for _, fc := range m.Files {
		for _, f := range m.functions {
			if _, ok := f.Files[fc.Path]; ok {
				fc.AddFunction(f)
			}
		}
	}
}
