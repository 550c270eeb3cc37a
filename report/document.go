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
	"encoding/xml"
	"io"
	"sort"

	"github.com/axw/trapcov"
	"github.com/pkg/errors"
)

type xmlResults struct {
	XMLName xml.Name    `xml:"results"`
	Modules []xmlModule `xml:"modules>module"`
}

type xmlModule struct {
	Name            string          `xml:"name,attr"`
	Path            string          `xml:"path,attr"`
	LinesCovered    int             `xml:"lines_covered,attr"`
	LinesNotCovered int             `xml:"lines_not_covered,attr"`
	Functions       []xmlFunction   `xml:"functions>function"`
	SourceFiles     []xmlSourceFile `xml:"source_files>source_file"`
}

type xmlFunction struct {
	ID              int        `xml:"id,attr"`
	Name            string     `xml:"name,attr"`
	Namespace       string     `xml:"namespace,attr"`
	TypeName        string     `xml:"type_name,attr"`
	LinesCovered    int        `xml:"lines_covered,attr"`
	LinesNotCovered int        `xml:"lines_not_covered,attr"`
	Ranges          []xmlRange `xml:"ranges>range"`
}

type xmlRange struct {
	SourceID  int    `xml:"source_id,attr"`
	Covered   string `xml:"covered,attr"`
	StartLine int    `xml:"start_line,attr"`
	EndLine   int    `xml:"end_line,attr"`
}

type xmlSourceFile struct {
	ID   int    `xml:"id,attr"`
	Path string `xml:"path,attr"`
}

// WriteDocument writes the coverage document of c.
func WriteDocument(w io.Writer, c *trapcov.Coverage) error {
	doc := xmlResults{Modules: make([]xmlModule, 0, len(c.Modules))}
	id := 0
	for _, m := range c.Modules {
		xm := xmlModule{Name: m.Name, Path: m.Path}
		xm.LinesCovered, xm.LinesNotCovered = m.Counts()
		sources := make(map[string]int, len(m.Files))
		for i, fc := range m.Files {
			sources[fc.Path] = i
			xm.SourceFiles = append(xm.SourceFiles, xmlSourceFile{ID: i, Path: fc.Path})
		}
		for _, f := range m.Functions() {
			xf := xmlFunction{
				ID:        id,
				Name:      f.Name,
				Namespace: f.Namespace,
				TypeName:  f.Class,
			}
			id++
			xf.LinesCovered, xf.LinesNotCovered = f.Counts()
			for _, file := range f.FileNames() {
				sourceID, ok := sources[file]
				if !ok {
					return errors.Errorf("function %s references %s outside module %s", f.Key(), file, m.Name)
				}
				xf.Ranges = append(xf.Ranges, ranges(sourceID, f.Files[file])...)
			}
			sort.SliceStable(xf.Ranges, func(i, j int) bool {
				return xf.Ranges[i].SourceID < xf.Ranges[j].SourceID
			})
			xm.Functions = append(xm.Functions, xf)
		}
		doc.Modules = append(doc.Modules, xm)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return errors.Wrap(err, "writing coverage document")
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "writing coverage document")
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return errors.Wrap(err, "writing coverage document")
	}
	return nil
}

// ranges groups adjacent lines with the same covered state.
func ranges(sourceID int, lines map[int]bool) []xmlRange {
	numbers := make([]int, 0, len(lines))
	for line := range lines {
		numbers = append(numbers, line)
	}
	sort.Ints(numbers)
	var out []xmlRange
	for _, line := range numbers {
		covered := yesNo(lines[line])
		if n := len(out); n > 0 && out[n-1].EndLine == line-1 && out[n-1].Covered == covered {
			out[n-1].EndLine = line
			continue
		}
		out = append(out, xmlRange{
			SourceID:  sourceID,
			Covered:   covered,
			StartLine: line,
			EndLine:   line,
		})
	}
	return out
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
