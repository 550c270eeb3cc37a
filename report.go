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
	"io"
	"text/tabwriter"
)

// PrintReport prints a per-file coverage summary to the given writer.
func PrintReport(w io.Writer, c *Coverage) error {
	tw := tabwriter.NewWriter(w, 0, 8, 1, '\t', 0)
	for _, m := range c.Modules {
		printModule(tw, m)
	}
	return tw.Flush()
}

func printModule(w io.Writer, m *Module) {
	for _, fc := range m.Files {
		covered, coverable := fc.Counts()
		fmt.Fprintf(w, "%s\t%s\t%d/%d (%s)\n",
			m.Name, fc.Path, covered, coverable, FormatPercentage(covered, coverable))
	}
	covered, notCovered := m.Counts()
	fmt.Fprintf(w, "%s\tTotal\t%d/%d (%s)\n",
		m.Name, covered, covered+notCovered, FormatPercentage(covered, covered+notCovered))
}

// FormatPercentage renders Percentage, "n/a" when coverage is undefined.
func FormatPercentage(covered, coverable int) string {
	percent, ok := Percentage(covered, coverable)
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%d%%", percent)
}
