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
	"io"

	"github.com/axw/trapcov"
	json "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// Summary is the machine readable digest of a run written to coverage.json.
type Summary struct {
	ExitCode int             `json:"exit_code"`
	Modules  []ModuleSummary `json:"modules"`
}

type ModuleSummary struct {
	Name      string        `json:"name"`
	Path      string        `json:"path"`
	Covered   int           `json:"lines_covered"`
	Coverable int           `json:"lines_coverable"`
	Percent   *int          `json:"percent"`
	Files     []FileSummary `json:"files"`
}

type FileSummary struct {
	Path      string `json:"path"`
	Covered   int    `json:"lines_covered"`
	Coverable int    `json:"lines_coverable"`
	Percent   *int   `json:"percent"`
}

// percent is nil when coverage is undefined.
func percent(covered, coverable int) *int {
	p, ok := trapcov.Percentage(covered, coverable)
	if !ok {
		return nil
	}
	return &p
}

func NewSummary(c *trapcov.Coverage) *Summary {
	s := &Summary{ExitCode: c.ExitCode, Modules: make([]ModuleSummary, 0, len(c.Modules))}
	for _, m := range c.Modules {
		covered, notCovered := m.Counts()
		ms := ModuleSummary{
			Name:      m.Name,
			Path:      m.Path,
			Covered:   covered,
			Coverable: covered + notCovered,
			Percent:   percent(covered, covered+notCovered),
			Files:     make([]FileSummary, 0, len(m.Files)),
		}
		for _, fc := range m.Files {
			fcovered, coverable := fc.Counts()
			ms.Files = append(ms.Files, FileSummary{
				Path:      fc.Path,
				Covered:   fcovered,
				Coverable: coverable,
				Percent:   percent(fcovered, coverable),
			})
		}
		s.Modules = append(s.Modules, ms)
	}
	return s
}

// WriteSummary encodes the summary of c as JSON.
func WriteSummary(w io.Writer, c *trapcov.Coverage) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewSummary(c)); err != nil {
		return errors.Wrap(err, "writing coverage summary")
	}
	return nil
}
