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


//go:build linux && amd64

package debugger

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/axw/trapcov"
	"github.com/axw/trapcov/symbols"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// debuggeeEnv makes the test binary run workload instead of its tests.
const debuggeeEnv = "TRAPCOV_DEBUGGEE"

const debuggeeExit = 7

func TestMain(m *testing.M) {
	if os.Getenv(debuggeeEnv) != "" {
		os.Exit(workload())
	}
	os.Exit(m.Run())
}

// workload runs on a few dedicated threads which exit with their
// goroutines.
//
//go:noinline
func workload() int {
	var wg sync.WaitGroup
	sums := make([]int, 4)
	for i := range sums {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runtime.LockOSThread()
			for j := 0; j < 1000; j++ {
				sums[i] += j
			}
		}()
	}
	wg.Wait()
	return debuggeeExit
}

func TestClassifyTrap(t *testing.T) {
	code, addr := classifyTrap(siKernel, 0x1001)
	assert.Equal(t, ExceptionBreakpoint, code)
	assert.Equal(t, uint64(0x1000), addr)

	// SI_USER, as sent by kill(2)
	code, addr = classifyTrap(0, 0x1001)
	assert.Equal(t, ExceptionTrapSignal, code)
	assert.Equal(t, uint64(0x1001), addr)

	// SI_TKILL, as sent by raise(3)
	code, _ = classifyTrap(-6, 0x1001)
	assert.Equal(t, ExceptionTrapSignal, code)
}

func TestPtraceLoop(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a debuggee")
	}
	_, file, _, _ := runtime.Caller(0)
	exe, err := os.Executable()
	require.NoError(t, err)
	t.Setenv(debuggeeEnv, "1")

	defer runtime.UnlockOSThread()
	proc, err := Start(exe, []string{"-test.run=^$"}, false)
	if errors.Is(err, unix.EPERM) {
		t.Skip("ptrace not permitted")
	}
	require.NoError(t, err)
	defer proc.Close()
	resolver := symbols.NewResolver()
	defer resolver.Close()

	var (
		exitCode = -1
		table    *trapcov.AddressTable
	)
	filter := NewFilter([]string{filepath.Dir(file)}, nil)
	l := NewLoop(proc, resolver, filter, func(processID, code int, tbl *trapcov.AddressTable) error {
		assert.Equal(t, proc.Pid(), processID)
		exitCode, table = code, tbl
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := l.Run(ctx, time.Second); err != nil {
		proc.Kill()
		t.Fatal(err)
	}

	assert.Equal(t, debuggeeExit, exitCode)
	code, exited := l.ExitCode()
	assert.True(t, exited)
	assert.Equal(t, debuggeeExit, code)
	require.NotNil(t, table)
	assert.Greater(t, table.Len(), 0)
	assert.Greater(t, table.Visited(), 0)
	// every thread but the initial one reported its exit
	assert.Equal(t, 1, l.threads.Len())
}
