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

package report

import (
	"bytes"
	"encoding/xml"
	"testing"

	"github.com/axw/trapcov"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFunction(id trapcov.SymbolID, key trapcov.FunctionKey, file string, lines map[int]bool) *trapcov.Function {
	f := trapcov.NewFunction(id, key)
	f.Files[file] = lines
	return f
}

func newFile(path string, hits map[int]int, fns ...*trapcov.Function) *trapcov.FileCoverage {
	fc := trapcov.NewFileCoverage(path)
	for line, n := range hits {
		fc.Hits[line] = n
	}
	for _, f := range fns {
		fc.AddFunction(f)
	}
	return fc
}

func testCoverage() *trapcov.Coverage {
	run := newFunction(1, trapcov.FunctionKey{Namespace: "app", Class: "Server", Name: "run"},
		"/src/app/server.cpp", map[int]bool{10: true, 11: true, 12: false, 14: true})
	main := newFunction(2, trapcov.FunctionKey{Name: "main"},
		"/src/app/main.cpp", map[int]bool{3: true, 4: true})
	inline := newFunction(3, trapcov.FunctionKey{Namespace: "app", Name: "clamp"},
		"/src/app/util.h", map[int]bool{7: false})
	helper := newFunction(4, trapcov.FunctionKey{Name: "helper"},
		"/src/lib/helper.cpp", map[int]bool{1: true})
	return &trapcov.Coverage{
		ExitCode: 2,
		Modules: []*trapcov.Module{
			{
				Name: "server",
				Path: "/bin/server",
				Files: []*trapcov.FileCoverage{
					newFile("/src/app/main.cpp", map[int]int{3: 1, 4: 2}, main),
					newFile("/src/app/server.cpp", map[int]int{10: 1, 11: 1, 12: 0, 14: 1}, run),
					newFile("/src/app/util.h", map[int]int{7: 0}, inline),
				},
			},
			{
				Name: "libhelper.so",
				Path: "/lib/libhelper.so",
				Files: []*trapcov.FileCoverage{
					newFile("/src/lib/helper.cpp", map[int]int{1: 1}, helper),
					newFile("/src/lib/empty.h", nil),
				},
			},
		},
	}
}

func TestWriteDocument(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDocument(&buf, testCoverage()))

	var doc xmlResults
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Modules, 2)

	m := doc.Modules[0]
	assert.Equal(t, "server", m.Name)
	assert.Equal(t, "/bin/server", m.Path)
	assert.Equal(t, 5, m.LinesCovered)
	assert.Equal(t, 2, m.LinesNotCovered)

	// module totals are the sums over functions
	var covered, notCovered int
	for _, f := range m.Functions {
		covered += f.LinesCovered
		notCovered += f.LinesNotCovered
	}
	assert.Equal(t, m.LinesCovered, covered)
	assert.Equal(t, m.LinesNotCovered, notCovered)

	// source ids are the file positions
	for i, sf := range m.SourceFiles {
		assert.Equal(t, i, sf.ID)
	}
	for _, f := range m.Functions {
		for _, r := range f.Ranges {
			assert.True(t, r.SourceID >= 0 && r.SourceID < len(m.SourceFiles))
		}
	}

	require.Len(t, m.Functions, 3)
	run := m.Functions[1]
	assert.Equal(t, "run", run.Name)
	assert.Equal(t, "app", run.Namespace)
	assert.Equal(t, "Server", run.TypeName)
	assert.Equal(t, []xmlRange{
		{SourceID: 1, Covered: "yes", StartLine: 10, EndLine: 11},
		{SourceID: 1, Covered: "no", StartLine: 12, EndLine: 12},
		{SourceID: 1, Covered: "yes", StartLine: 14, EndLine: 14},
	}, run.Ranges)

	// function ids run across modules
	assert.Equal(t, 3, doc.Modules[1].Functions[0].ID)
	assert.Len(t, doc.Modules[1].SourceFiles, 2)
}

func TestWriteDocumentForeignFile(t *testing.T) {
	f := newFunction(1, trapcov.FunctionKey{Name: "f"}, "/elsewhere.cpp", map[int]bool{1: true})
	fc := trapcov.NewFileCoverage("/src/a.cpp")
	fc.Functions = append(fc.Functions, f)
	c := &trapcov.Coverage{Modules: []*trapcov.Module{{Name: "m", Files: []*trapcov.FileCoverage{fc}}}}
	assert.Error(t, WriteDocument(&bytes.Buffer{}, c))
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, testCoverage()))

	var s Summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &s))
	assert.Equal(t, 2, s.ExitCode)
	require.Len(t, s.Modules, 2)
	assert.Equal(t, 5, s.Modules[0].Covered)
	assert.Equal(t, 7, s.Modules[0].Coverable)
	require.NotNil(t, s.Modules[0].Percent)
	assert.Equal(t, 71, *s.Modules[0].Percent)

	empty := s.Modules[1].Files[1]
	assert.Equal(t, "/src/lib/empty.h", empty.Path)
	assert.Nil(t, empty.Percent)
}
