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

import "github.com/pkg/errors"

// ThreadRegistry maps live thread ids to their handles.
type ThreadRegistry struct {
	threads map[int]ThreadHandle
}

func NewThreadRegistry() *ThreadRegistry {
	return &ThreadRegistry{threads: make(map[int]ThreadHandle)}
}

func (r *ThreadRegistry) Add(threadID int, h ThreadHandle) error {
	if _, ok := r.threads[threadID]; ok {
		return errors.Errorf("thread %d registered twice", threadID)
	}
	r.threads[threadID] = h
	return nil
}

func (r *ThreadRegistry) Remove(threadID int) error {
	if _, ok := r.threads[threadID]; !ok {
		return errors.Errorf("exit of unregistered thread %d", threadID)
	}
	delete(r.threads, threadID)
	return nil
}

func (r *ThreadRegistry) Lookup(threadID int) (ThreadHandle, bool) {
	h, ok := r.threads[threadID]
	return h, ok
}

func (r *ThreadRegistry) Len() int {
	return len(r.threads)
}
