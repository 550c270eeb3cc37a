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

package convert

import (
	"bufio"
	"fmt"
	"io"

	"github.com/axw/trapcov"
	"github.com/pkg/errors"
	"golang.org/x/tools/cover"
)

// WriteProfile writes the line coverage of c as a Go cover profile in set
// mode, one block per coverable line, so that it can be merged into a later
// run or read by other cover-profile tooling.
func WriteProfile(w io.Writer, c *trapcov.Coverage) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "mode: set")
	for _, fc := range c.Files() {
		for _, line := range fc.Lines() {
			count := 0
			if fc.Hits[line] > 0 {
				count = 1
			}
			fmt.Fprintf(bw, "%s:%d.1,%d.2 1 %d\n", fc.Path, line, line, count)
		}
	}
	return bw.Flush()
}

// MergeProfiles marks as covered every line of c that a block of one of the
// named profiles covers. Lines that are not coverable in c are ignored.
func MergeProfiles(c *trapcov.Coverage, filenames ...string) error {
	covered := make(map[string]map[int]bool)
	for _, filename := range filenames {
		profiles, err := cover.ParseProfiles(filename)
		if err != nil {
			return errors.Wrapf(err, "reading profile %s", filename)
		}
		for _, p := range profiles {
			for _, b := range p.Blocks {
				if b.Count == 0 {
					continue
				}
				lines := covered[p.FileName]
				if lines == nil {
					lines = make(map[int]bool)
					covered[p.FileName] = lines
				}
				for line := b.StartLine; line <= b.EndLine; line++ {
					lines[line] = true
				}
			}
		}
	}
	for _, m := range c.Modules {
		for _, fc := range m.Files {
			mergeFile(fc, covered[fc.Path])
		}
	}
	return nil
}

func mergeFile(fc *trapcov.FileCoverage, covered map[int]bool) {
	for line := range covered {
		hits, ok := fc.Hits[line]
		if !ok {
			continue
		}
		if hits == 0 {
			fc.Hits[line] = 1
		}
		for _, f := range fc.Functions {
			if lines := f.Files[fc.Path]; lines != nil {
				if _, ok := lines[line]; ok {
					lines[line] = true
				}
			}
		}
	}
}
