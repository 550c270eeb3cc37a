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
	"strings"

	"github.com/axw/trapcov"
	"github.com/axw/trapcov/internal/log"
	"github.com/pkg/errors"
)

// Line numbers compilers emit for code without a source mapping.
const (
	noLine        = 0
	hiddenLine    = 0xfeefee
	hiddenLineAlt = 0xf00f00
)

func isSentinelLine(line int) bool {
	return line == noLine || line == hiddenLine || line == hiddenLineAlt
}

// Filter selects source files by case-insensitive path prefix.
type Filter struct {
	includes []string
	excludes []string
}

func NewFilter(includes, excludes []string) *Filter {
	return &Filter{includes: lower(includes), excludes: lower(excludes)}
}

func lower(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = strings.ToLower(p)
	}
	return out
}

// Match reports whether file is included and not excluded. An empty include
// list includes everything.
func (f *Filter) Match(file string) bool {
	file = strings.ToLower(file)
	included := len(f.includes) == 0
	for _, prefix := range f.includes {
		if strings.HasPrefix(file, prefix) {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, prefix := range f.excludes {
		if strings.HasPrefix(file, prefix) {
			return false
		}
	}
	return true
}

// PlanStats counts what one Instrument call did.
type PlanStats struct {
	Lines     int
	Skipped   int
	Addresses int
}

// Planner installs a trap at the first address of every selected line.
type Planner struct {
	target Target
	table  *trapcov.AddressTable
	filter *Filter
}

func NewPlanner(target Target, table *trapcov.AddressTable, filter *Filter) *Planner {
	if filter == nil {
		filter = NewFilter(nil, nil)
	}
	return &Planner{target: target, table: table, filter: filter}
}

// Instrument patches every line lines reports for the module mapped at base.
func (p *Planner) Instrument(lines LineSource, processID int, module string, base uint64) (PlanStats, error) {
	var stats PlanStats
	err := lines.ForEachLine(processID, base, func(file string, line int, addr uint64) error {
		if isSentinelLine(line) || !p.filter.Match(file) {
			stats.Skipped++
			return nil
		}
		created, err := p.addLine(processID, module, file, line, addr)
		if err != nil {
			return err
		}
		stats.Lines++
		if created {
			stats.Addresses++
		}
		return nil
	})
	if err != nil {
		return stats, err
	}
	log.Logger.Infof("instrumented %s: %d lines at %d addresses (%d lines skipped)",
		module, stats.Lines, stats.Addresses, stats.Skipped)
	return stats, nil
}

// addLine attaches the line to its address, patching the address the first
// time it is seen.
func (p *Planner) addLine(processID int, module, file string, line int, addr uint64) (bool, error) {
	a, ok := p.table.Lookup(addr)
	if ok {
		a.AddLine(file, line)
		return false, nil
	}
	original := make([]byte, 1)
	if err := p.target.ReadMemory(processID, addr, original); err != nil {
		return false, errors.Wrapf(err, "reading original byte at %#x", addr)
	}
	a = trapcov.NewAddress(addr, module, original[0])
	a.AddLine(file, line)
	if err := p.table.Insert(a); err != nil {
		return false, err
	}
	if err := p.target.WriteMemory(processID, addr, []byte{trapcov.TrapOpcode}); err != nil {
		return false, errors.Wrapf(err, "installing trap at %#x", addr)
	}
	return true, nil
}
