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

// Package report writes the coverage document and the HTML report tree of
// a finished run.
package report

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const separator = "/"

func components(dir string) []string {
	var parts []string
	for _, p := range strings.Split(filepath.ToSlash(filepath.Clean(dir)), separator) {
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}
	return parts
}

func join(parts []string, absolute bool) string {
	s := strings.Join(parts, separator)
	if absolute {
		s = separator + s
	}
	if s == "" {
		s = "."
	}
	return filepath.FromSlash(s)
}

func compareComponents(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func commonPrefix(a, b []string) []string {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return a[:n]
}

type dirEntry struct {
	parts    []string
	absolute bool
}

// ReduceRoots reduces a set of directories to the roots the HTML report is
// built from. Directories are sorted by path components and swept once from
// left to right: a directory sharing a non-empty component prefix with its
// successor is replaced by that prefix and the sweep continues from the
// merged entry. Directories are only ever compared with their neighbour in
// the sweep.
func ReduceRoots(dirs []string) []string {
	seen := make(map[string]bool)
	var entries []dirEntry
	for _, d := range dirs {
		d = filepath.Clean(d)
		if seen[d] {
			continue
		}
		seen[d] = true
		entries = append(entries, dirEntry{
			parts:    components(d),
			absolute: filepath.IsAbs(d),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.absolute != b.absolute {
			return a.absolute
		}
		return compareComponents(a.parts, b.parts) < 0
	})

	var roots []string
	for i := 0; i < len(entries); i++ {
		cur := entries[i]
		for i+1 < len(entries) {
			next := entries[i+1]
			if next.absolute != cur.absolute {
				break
			}
			prefix := commonPrefix(cur.parts, next.parts)
			if len(prefix) == 0 {
				break
			}
			cur.parts = prefix
			i++
		}
		roots = append(roots, join(cur.parts, cur.absolute))
	}
	return roots
}

// Reduce finds the root containing file and returns it with the path of
// file relative to it. The deepest matching root wins.
func Reduce(file string, roots []string) (root, rel string, err error) {
	file = filepath.Clean(file)
	best := -1
	for i, r := range roots {
		if !within(file, r) {
			continue
		}
		if best == -1 || len(roots[i]) > len(roots[best]) {
			best = i
		}
	}
	if best == -1 {
		return "", "", errors.Errorf("path not reduced: %s", file)
	}
	root = roots[best]
	rel, err = filepath.Rel(root, file)
	if err != nil {
		return "", "", errors.Wrapf(err, "path not reduced: %s", file)
	}
	return root, rel, nil
}

func within(file, dir string) bool {
	if filepath.IsAbs(file) != filepath.IsAbs(dir) {
		return false
	}
	fp, dp := components(file), components(dir)
	if len(dp) >= len(fp) {
		return false
	}
	return compareComponents(fp[:len(dp)], dp) == 0
}

// ParentDirs returns the distinct directories holding the given files.
func ParentDirs(files []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, f := range files {
		d := filepath.Dir(filepath.Clean(f))
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	sort.Strings(dirs)
	return dirs
}
