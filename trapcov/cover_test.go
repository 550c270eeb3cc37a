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


package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/axw/trapcov"
)

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestPublish(t *testing.T) {
	dir := t.TempDir()
	opts := &options{reportDir: filepath.Join(dir, "report"), export: filepath.Join(dir, "c.out")}
	if err := publish(opts, &trapcov.Coverage{}); err != nil {
		t.Fatal(err)
	}
	if !exists(opts.export) {
		t.Errorf("expected %s to be written", opts.export)
	}
	if !exists(filepath.Join(opts.reportDir, "coverage.xml")) {
		t.Errorf("expected coverage.xml to be written")
	}
	matches, _ := filepath.Glob(filepath.Join(dir, ".trapcov-*"))
	if len(matches) != 0 {
		t.Errorf("temporary files left behind: %v", matches)
	}
}

func TestPublishExportFailureSkipsReport(t *testing.T) {
	dir := t.TempDir()
	opts := &options{reportDir: filepath.Join(dir, "report"), export: filepath.Join(dir, "missing", "c.out")}
	if err := publish(opts, &trapcov.Coverage{}); err == nil {
		t.Fatal("expected export into a missing directory to fail")
	}
	if exists(filepath.Join(opts.reportDir, "coverage.xml")) {
		t.Errorf("report written although the export failed")
	}
}

func TestPublishReportFailureRemovesExport(t *testing.T) {
	dir := t.TempDir()
	// a regular file where the report directory should go
	blocker := filepath.Join(dir, "report")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	opts := &options{reportDir: blocker, export: filepath.Join(dir, "c.out")}
	if err := publish(opts, &trapcov.Coverage{}); err == nil {
		t.Fatal("expected report into a regular file to fail")
	}
	if exists(opts.export) {
		t.Errorf("profile left behind although the report failed")
	}
}
