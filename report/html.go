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
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/axw/trapcov"
	"github.com/axw/trapcov/internal/log"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

//go:embed templates
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const (
	styleName = "style.css"
	indexName = "index.html"
)

// Level names the colour of a coverage bar.
func Level(covered, coverable int) string {
	p, ok := trapcov.Percentage(covered, coverable)
	switch {
	case !ok:
		return "none"
	case p < 70:
		return "red"
	case p < 90:
		return "amber"
	}
	return "green"
}

type row struct {
	Name      string
	Link      string
	Covered   int
	Coverable int
	Percent   string
	Level     string
	Width     int
}

func newRow(name, link string, covered, coverable int) row {
	width, ok := trapcov.Percentage(covered, coverable)
	if !ok {
		width = 100
	}
	return row{
		Name:      name,
		Link:      link,
		Covered:   covered,
		Coverable: coverable,
		Percent:   trapcov.FormatPercentage(covered, coverable),
		Level:     Level(covered, coverable),
		Width:     width,
	}
}

type indexPage struct {
	Title string
	Style string
	Up    string
	Rows  []row
	Total row
}

type sourceLine struct {
	Number int
	Hits   int
	Class  string
	Text   string
}

type filePage struct {
	Title     string
	Path      string
	Style     string
	Up        string
	Covered   int
	Coverable int
	Percent   string
	Missing   bool
	Lines     []sourceLine
}

type rootDir struct {
	path  string
	name  string
	files []*sourceFile
}

type sourceFile struct {
	coverage *trapcov.FileCoverage
	rel      string
}

// Emitter writes the report tree of a run below Dir.
type Emitter struct {
	Dir string

	// Concurrency bounds the number of source pages written at once.
	Concurrency int

	readSource func(path string) ([]byte, error)
}

func NewEmitter(dir string) *Emitter {
	return &Emitter{
		Dir:         dir,
		Concurrency: runtime.NumCPU(),
		readSource:  os.ReadFile,
	}
}

// Emit writes coverage.xml, coverage.json, the stylesheet and the HTML
// pages for c.
func (e *Emitter) Emit(c *trapcov.Coverage) error {
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return errors.Wrap(err, "creating report directory")
	}
	err := e.writeFile(filepath.Join(e.Dir, "coverage.xml"), func(w io.Writer) error {
		return WriteDocument(w, c)
	})
	if err != nil {
		return err
	}
	err = e.writeFile(filepath.Join(e.Dir, "coverage.json"), func(w io.Writer) error {
		return WriteSummary(w, c)
	})
	if err != nil {
		return err
	}
	err = e.writeFile(filepath.Join(e.Dir, styleName), func(w io.Writer) error {
		style, err := templateFS.ReadFile("templates/" + styleName)
		if err != nil {
			return err
		}
		_, err = w.Write(style)
		return err
	})
	if err != nil {
		return err
	}

	roots, err := layout(c.Files())
	if err != nil {
		return err
	}
	if err := e.writeRootIndex(roots); err != nil {
		return err
	}
	for _, r := range roots {
		if err := e.writeDirIndex(r); err != nil {
			return err
		}
	}

	g := new(errgroup.Group)
	if e.Concurrency > 0 {
		g.SetLimit(e.Concurrency)
	}
	for _, r := range roots {
		for _, f := range r.files {
			g.Go(func() error {
				return e.writeSourcePage(r, f)
			})
		}
	}
	return g.Wait()
}

// layout groups files by reduced root. Each root gets a distinct directory
// name in the report tree.
func layout(files []*trapcov.FileCoverage) ([]*rootDir, error) {
	paths := make([]string, len(files))
	for i, fc := range files {
		paths[i] = fc.Path
	}
	byPath := make(map[string]*rootDir)
	var roots []*rootDir
	names := make(map[string]bool)
	for _, r := range ReduceRoots(ParentDirs(paths)) {
		name := dirName(r)
		for i := 2; names[name]; i++ {
			name = fmt.Sprintf("%s-%d", dirName(r), i)
		}
		names[name] = true
		rd := &rootDir{path: r, name: name}
		byPath[r] = rd
		roots = append(roots, rd)
	}
	rootPaths := make([]string, len(roots))
	for i, r := range roots {
		rootPaths[i] = r.path
	}
	for _, fc := range files {
		root, rel, err := Reduce(fc.Path, rootPaths)
		if err != nil {
			return nil, err
		}
		rd := byPath[root]
		rd.files = append(rd.files, &sourceFile{coverage: fc, rel: rel})
	}
	for _, rd := range roots {
		sort.Slice(rd.files, func(i, j int) bool {
			return rd.files[i].rel < rd.files[j].rel
		})
	}
	return roots, nil
}

func dirName(root string) string {
	name := strings.Trim(filepath.ToSlash(root), "/.")
	name = strings.NewReplacer("/", "_", ":", "_", "\\", "_").Replace(name)
	if name == "" {
		return "root"
	}
	return name
}

func relLink(from, to string) (string, error) {
	rel, err := filepath.Rel(filepath.Dir(from), to)
	if err != nil {
		return "", errors.Wrapf(err, "linking %s to %s", from, to)
	}
	return filepath.ToSlash(rel), nil
}

func totals(files []*sourceFile) (covered, coverable int) {
	for _, f := range files {
		c, n := f.coverage.Counts()
		covered += c
		coverable += n
	}
	return
}

func (e *Emitter) writeRootIndex(roots []*rootDir) error {
	page := indexPage{Title: "Coverage report", Style: styleName}
	var covered, coverable int
	for _, r := range roots {
		c, n := totals(r.files)
		covered += c
		coverable += n
		page.Rows = append(page.Rows, newRow(r.path, r.name+"/"+indexName, c, n))
	}
	page.Total = newRow("Total", "", covered, coverable)
	return e.writeTemplate(filepath.Join(e.Dir, indexName), indexName, page)
}

func (e *Emitter) writeDirIndex(r *rootDir) error {
	dest := filepath.Join(e.Dir, r.name, indexName)
	style, err := relLink(dest, filepath.Join(e.Dir, styleName))
	if err != nil {
		return err
	}
	page := indexPage{Title: r.path, Style: style, Up: "../" + indexName}
	for _, f := range r.files {
		c, n := f.coverage.Counts()
		page.Rows = append(page.Rows, newRow(filepath.ToSlash(f.rel), filepath.ToSlash(f.rel)+".html", c, n))
	}
	c, n := totals(r.files)
	page.Total = newRow("Total", "", c, n)
	return e.writeTemplate(dest, indexName, page)
}

func (e *Emitter) writeSourcePage(r *rootDir, f *sourceFile) error {
	dest := filepath.Join(e.Dir, r.name, f.rel+".html")
	style, err := relLink(dest, filepath.Join(e.Dir, styleName))
	if err != nil {
		return err
	}
	up, err := relLink(dest, filepath.Join(e.Dir, r.name, indexName))
	if err != nil {
		return err
	}
	fc := f.coverage
	covered, coverable := fc.Counts()
	page := filePage{
		Title:     filepath.ToSlash(f.rel),
		Path:      fc.Path,
		Style:     style,
		Up:        up,
		Covered:   covered,
		Coverable: coverable,
		Percent:   trapcov.FormatPercentage(covered, coverable),
	}
	src, err := e.readSource(fc.Path)
	if err != nil {
		log.Logger.Warnf("cannot read source %s: %v", fc.Path, err)
		page.Missing = true
	} else {
		page.Lines = sourceLines(src, fc.Hits)
	}
	return e.writeTemplate(dest, "file.html", page)
}

func sourceLines(src []byte, hits map[int]int) []sourceLine {
	text := strings.Split(strings.TrimSuffix(string(src), "\n"), "\n")
	lines := make([]sourceLine, len(text))
	for i, t := range text {
		l := sourceLine{
			Number: i + 1,
			Class:  "none",
			Text:   strings.ReplaceAll(strings.TrimSuffix(t, "\r"), "\t", "    "),
		}
		if n, ok := hits[l.Number]; ok {
			l.Hits = n
			l.Class = "uncovered"
			if n > 0 {
				l.Class = "covered"
			}
		}
		lines[i] = l
	}
	return lines
}

func (e *Emitter) writeTemplate(dest, name string, data interface{}) error {
	return e.writeFile(dest, func(w io.Writer) error {
		return templates.ExecuteTemplate(w, name, data)
	})
}

func (e *Emitter) writeFile(dest string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.Wrapf(err, "creating directory for %s", dest)
	}
	f, err := os.Create(dest)
	if err != nil {
		return errors.Wrapf(err, "creating %s", dest)
	}
	err = multierr.Append(write(f), f.Close())
	return errors.Wrapf(err, "writing %s", dest)
}
