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

package trapcov

import (
	"fmt"
	"sort"
)

// SymbolID identifies a resolved function symbol within one debuggee.
type SymbolID uint64

type SymbolTag int

const (
	// TagFunction marks symbols taken from debug information.
	TagFunction SymbolTag = iota
	// TagPublic marks symbols taken from the image symbol table only.
	TagPublic
)

func (t SymbolTag) String() string {
	switch t {
	case TagFunction:
		return "function"
	case TagPublic:
		return "public"
	}
	return fmt.Sprintf("tag(%d)", int(t))
}

// Symbol is the function symbol owning an address.
type Symbol struct {
	ID   SymbolID
	Name string
	Tag  SymbolTag
}

// FunctionKey is the reporting identity of a function: template argument
// lists are stripped from every part.
type FunctionKey struct {
	Namespace string
	Class     string
	Name      string
}

func (k FunctionKey) String() string {
	s := k.Name
	if k.Class != "" {
		s = k.Class + "::" + s
	}
	if k.Namespace != "" {
		s = k.Namespace + "::" + s
	}
	return s
}

// LineRange is an inclusive range of source lines.
type LineRange struct {
	Start, End int
}

func (r LineRange) Overlaps(o LineRange) bool {
	return r.Start <= o.End && o.Start <= r.End
}

type Function struct {
	ID SymbolID
	FunctionKey

	// Files maps source file to line to covered.
	Files map[string]map[int]bool
}

func NewFunction(id SymbolID, key FunctionKey) *Function {
	return &Function{ID: id, FunctionKey: key, Files: make(map[string]map[int]bool)}
}

func (f *Function) Key() FunctionKey {
	return f.FunctionKey
}

// Accumulate credits the function with every line the address carries.
// Covered lines stay covered.
func (f *Function) Accumulate(a *Address) {
	for file, lines := range a.Lines {
		for line, covered := range lines {
			f.setLine(file, line, covered)
		}
	}
}

// Union ORs the line tables of g into f.
func (f *Function) Union(g *Function) {
	for file, lines := range g.Files {
		for line, covered := range lines {
			f.setLine(file, line, covered)
		}
	}
}

func (f *Function) setLine(file string, line int, covered bool) {
	lines := f.Files[file]
	if lines == nil {
		lines = make(map[int]bool)
		f.Files[file] = lines
	}
	lines[line] = lines[line] || covered
}

// Range returns the lines spanned by the function in file.
func (f *Function) Range(file string) (LineRange, bool) {
	lines := f.Files[file]
	if len(lines) == 0 {
		return LineRange{}, false
	}
	r := LineRange{Start: -1}
	for line := range lines {
		if r.Start == -1 || line < r.Start {
			r.Start = line
		}
		if line > r.End {
			r.End = line
		}
	}
	return r, true
}

// FileNames returns the files the function references, sorted.
func (f *Function) FileNames() []string {
	names := make([]string, 0, len(f.Files))
	for name := range f.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Counts returns the number of covered and not covered lines over all files.
func (f *Function) Counts() (covered, notCovered int) {
	for _, lines := range f.Files {
		for _, c := range lines {
			if c {
				covered++
			} else {
				notCovered++
			}
		}
	}
	return
}

// overlapsIn reports whether f and g span overlapping lines of some file.
func (f *Function) overlapsIn(g *Function) bool {
	for file := range g.Files {
		r, ok := f.Range(file)
		if !ok {
			continue
		}
		if gr, ok := g.Range(file); ok && r.Overlaps(gr) {
			return true
		}
	}
	return false
}

// MergeFunctions folds functions sharing a key whose line ranges overlap in
// any file into the earliest of them, until no two remaining functions with
// the same key overlap anywhere. The survivors are returned in their
// original order.
func MergeFunctions(fns []*Function) []*Function {
	absorbed := make(map[*Function]bool)
	byKey := make(map[FunctionKey][]*Function)
	for _, f := range fns {
		byKey[f.Key()] = append(byKey[f.Key()], f)
	}
	for _, group := range byKey {
		for merged := true; merged; {
			merged = false
			for i, f := range group {
				if absorbed[f] {
					continue
				}
				for _, g := range group[i+1:] {
					if !absorbed[g] && f.overlapsIn(g) {
						f.Union(g)
						absorbed[g] = true
						merged = true
					}
				}
			}
		}
	}
	out := make([]*Function, 0, len(fns))
	for _, f := range fns {
		if !absorbed[f] {
			out = append(out, f)
		}
	}
	return out
}

// FileCoverage collects the functions and line hits of one source file.
type FileCoverage struct {
	Path      string
	Functions []*Function

	// Hits maps every coverable line to the number of visited addresses
	// starting it.
	Hits map[int]int
}

func NewFileCoverage(path string) *FileCoverage {
	return &FileCoverage{Path: path, Hits: make(map[int]int)}
}

// AddLine records a coverable line; visited addresses count as hits.
func (fc *FileCoverage) AddLine(line int, visited bool) {
	n := fc.Hits[line]
	if visited {
		n++
	}
	fc.Hits[line] = n
}

// AddFunction inserts f unless an entry with the same key already spans an
// overlapping range of this file, in which case f's lines are merged into
// that entry and f is dropped. Template instantiations sharing a definition
// collapse this way while overloads at other lines stay apart.
func (fc *FileCoverage) AddFunction(f *Function) {
	r, ok := f.Range(fc.Path)
	if !ok {
		return
	}
	for i, e := range fc.Functions {
		if e == f {
			return
		}
		if e.Key() != f.Key() {
			continue
		}
		if er, ok := e.Range(fc.Path); ok && er.Overlaps(r) {
			e.Union(f)
			fc.coalesce(i)
			return
		}
	}
	fc.Functions = append(fc.Functions, f)
}

// coalesce folds entries that overlap the grown entry at index i.
func (fc *FileCoverage) coalesce(i int) {
	target := fc.Functions[i]
	for merged := true; merged; {
		merged = false
		r, _ := target.Range(fc.Path)
		for j, e := range fc.Functions {
			if e == target || e.Key() != target.Key() {
				continue
			}
			if er, ok := e.Range(fc.Path); ok && er.Overlaps(r) {
				target.Union(e)
				fc.Functions = append(fc.Functions[:j], fc.Functions[j+1:]...)
				merged = true
				break
			}
		}
	}
}

// Lines returns the coverable lines in ascending order.
func (fc *FileCoverage) Lines() []int {
	lines := make([]int, 0, len(fc.Hits))
	for line := range fc.Hits {
		lines = append(lines, line)
	}
	sort.Ints(lines)
	return lines
}

// Counts returns the number of covered and coverable lines.
func (fc *FileCoverage) Counts() (covered, coverable int) {
	for _, hits := range fc.Hits {
		if hits > 0 {
			covered++
		}
	}
	return covered, len(fc.Hits)
}

// Module is one image loaded into the debuggee.
type Module struct {
	Name  string
	Path  string
	Files []*FileCoverage
}

// Functions returns the functions of every file of the module, each once,
// in file order.
func (m *Module) Functions() []*Function {
	seen := make(map[*Function]bool)
	var fns []*Function
	for _, fc := range m.Files {
		for _, f := range fc.Functions {
			if !seen[f] {
				seen[f] = true
				fns = append(fns, f)
			}
		}
	}
	return fns
}

// Counts sums the line counts of the module's functions.
func (m *Module) Counts() (covered, notCovered int) {
	for _, f := range m.Functions() {
		c, n := f.Counts()
		covered += c
		notCovered += n
	}
	return
}

// Coverage is the result of one supervised run.
type Coverage struct {
	ExitCode int
	Modules  []*Module
}

// Files merges the file statistics of all modules by path. A source file
// compiled into several modules (a shared header, say) is reported once.
func (c *Coverage) Files() []*FileCoverage {
	byPath := make(map[string]*FileCoverage)
	for _, m := range c.Modules {
		for _, fc := range m.Files {
			merged := byPath[fc.Path]
			if merged == nil {
				merged = NewFileCoverage(fc.Path)
				byPath[fc.Path] = merged
			}
			for line, hits := range fc.Hits {
				merged.Hits[line] += hits
			}
			merged.Functions = append(merged.Functions, fc.Functions...)
		}
	}
	files := make([]*FileCoverage, 0, len(byPath))
	for _, fc := range byPath {
		files = append(files, fc)
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files
}
