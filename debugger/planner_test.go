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
	"testing"

	"github.com/axw/trapcov"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter(t *testing.T) {
	f := NewFilter([]string{"/src"}, []string{"/src/vendor"})
	for _, test := range []struct {
		file  string
		match bool
	}{
		{"/src/a.cpp", true},
		{"/SRC/B.cpp", true},
		{"/src/vendor/x.cpp", false},
		{"/usr/include/stdio.h", false},
	} {
		assert.Equal(t, test.match, f.Match(test.file), test.file)
	}
	assert.True(t, NewFilter(nil, nil).Match("/anything"))
	assert.False(t, NewFilter(nil, []string{"/usr"}).Match("/usr/include/c++/vector"))
}

func TestPlannerInstrument(t *testing.T) {
	target := newFakeTarget()
	target.memory[0x1000] = 0x55
	target.memory[0x1004] = 0x48
	target.memory[0x1008] = 0x90
	target.memory[0x100c] = 0xc3
	lines := &fakeLines{machine: 0, lines: map[uint64][]fakeLine{
		0x400000: {
			{"/src/a.cpp", 1, 0x1000},
			{"/src/a.cpp", 2, 0x1004},
			// two lines starting at one address
			{"/src/a.cpp", 3, 0x1004},
			{"/src/a.cpp", 0xfeefee, 0x1008},
			{"/src/a.cpp", 0, 0x1008},
			{"/src/vendor/v.cpp", 7, 0x1008},
			{"/usr/include/x.h", 9, 0x100c},
		},
	}}
	table := trapcov.NewAddressTable()
	p := NewPlanner(target, table, NewFilter([]string{"/src"}, []string{"/src/vendor"}))
	stats, err := p.Instrument(lines, 1, "/bin/prog", 0x400000)
	require.NoError(t, err)
	assert.Equal(t, PlanStats{Lines: 3, Skipped: 4, Addresses: 2}, stats)

	// only the selected addresses are patched, each once
	assert.Equal(t, 2, target.writes)
	assert.Equal(t, trapcov.TrapOpcode, target.memory[0x1000])
	assert.Equal(t, trapcov.TrapOpcode, target.memory[0x1004])
	assert.Equal(t, byte(0x90), target.memory[0x1008])
	assert.Equal(t, byte(0xc3), target.memory[0x100c])

	a, ok := table.Lookup(0x1004)
	require.True(t, ok)
	assert.Equal(t, byte(0x48), a.Original)
	assert.Equal(t, "/bin/prog", a.Module)
	assert.Equal(t, map[string]map[int]bool{"/src/a.cpp": {2: false, 3: false}}, a.Lines)
}

func TestPlannerReadFailure(t *testing.T) {
	target := newFakeTarget()
	lines := &fakeLines{lines: map[uint64][]fakeLine{
		0: {{"/src/a.cpp", 1, 0x2000}},
	}}
	table := trapcov.NewAddressTable()
	_, err := NewPlanner(target, table, nil).Instrument(lines, 1, "prog", 0)
	assert.Error(t, err)
	assert.Equal(t, 0, table.Len())
}
