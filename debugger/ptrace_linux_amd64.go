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
	"bufio"
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"
	"unsafe"

	"github.com/axw/trapcov"
	"github.com/axw/trapcov/internal/log"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const pollInterval = 2 * time.Millisecond

// siKernel is the si_code the kernel sets on the SIGTRAP of an int3.
const siKernel = 0x80

// siginfo is the head of the kernel's siginfo_t.
type siginfo struct {
	signo int32
	errno int32
	code  int32
	_     int32
	_     [112]byte
}

func trapCode(tid int) (int32, error) {
	var info siginfo
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_GETSIGINFO,
		uintptr(tid), 0, uintptr(unsafe.Pointer(&info)), 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return info.code, nil
}

// classifyTrap maps a SIGTRAP stop at pc to an exception. Only a trap
// instruction has already advanced the PC past itself.
func classifyTrap(siCode int32, pc uint64) (ExceptionCode, uint64) {
	if siCode == siKernel {
		return ExceptionBreakpoint, pc - trapcov.TrapWidth
	}
	return ExceptionTrapSignal, pc
}

type threadState struct {
	stopped bool
	// signal is delivered if the stop is continued as NotHandled.
	signal unix.Signal
	// expectStop is set for threads announced by a clone event whose
	// initial SIGSTOP has not arrived yet.
	expectStop bool
}

// ptraceProcess debugs one process with ptrace. Every method must be called
// from the goroutine that called Start.
type ptraceProcess struct {
	pid           int
	mem           *os.File
	threads       map[int]*threadState
	pending       []*Event
	followModules bool
	modules       map[string]bool
}

// Start launches path with args under ptrace, stopped before its first
// instruction. The first event is ProcessCreated. The calling goroutine is
// locked to its OS thread for the rest of the process lifetime, as the
// kernel only accepts ptrace requests from the tracing thread. With
// followModules, shared objects mapped by the debuggee are reported as
// ModuleLoaded events.
func Start(path string, args []string, followModules bool) (Process, error) {
	runtime.LockOSThread()

	cmd := exec.Command(path, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "starting %s", path)
	}
	pid := cmd.Process.Pid

	var ws unix.WaitStatus
	if _, err := unix.Wait4(pid, &ws, unix.WALL, nil); err != nil {
		return nil, errors.Wrapf(err, "waiting for %s to start", path)
	}
	if !ws.Stopped() || ws.StopSignal() != unix.SIGTRAP {
		return nil, errors.Errorf("%s did not stop after exec (status %#x)", path, uint32(ws))
	}
	// Children are not traced; only clones of the debuggee are followed.
	if err := unix.PtraceSetOptions(pid, unix.PTRACE_O_TRACECLONE|unix.PTRACE_O_EXITKILL); err != nil {
		unix.Kill(pid, unix.SIGKILL)
		return nil, errors.Wrap(err, "setting ptrace options")
	}

	p := &ptraceProcess{
		pid:           pid,
		threads:       map[int]*threadState{pid: {stopped: true}},
		followModules: followModules,
		modules:       make(map[string]bool),
	}
	if err := p.init(); err != nil {
		p.Kill()
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *ptraceProcess) init() error {
	mem, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", p.pid), os.O_RDWR, 0)
	if err != nil {
		return errors.Wrap(err, "opening debuggee memory")
	}
	p.mem = mem

	exe, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", p.pid))
	if err != nil {
		return errors.Wrap(err, "resolving debuggee image")
	}
	images, err := p.mappedImages()
	if err != nil {
		return err
	}
	base, ok := images[exe]
	if !ok {
		return errors.Errorf("%s is not mapped into process %d", exe, p.pid)
	}
	// Everything mapped now (the image itself and the dynamic loader) is
	// known; later scans report only new objects.
	for path := range images {
		p.modules[path] = true
	}
	p.push(&Event{
		ProcessID: p.pid,
		ThreadID:  p.pid,
		Payload:   &ProcessCreated{ImagePath: exe, ImageBase: base, Thread: ThreadHandle(p.pid)},
	})
	return nil
}

func (p *ptraceProcess) Pid() int {
	return p.pid
}

func (p *ptraceProcess) push(ev *Event) {
	p.pending = append(p.pending, ev)
}

func (p *ptraceProcess) WaitForEvent(timeout time.Duration) (*Event, error) {
	deadline := time.Now().Add(timeout)
	for {
		if len(p.pending) > 0 {
			ev := p.pending[0]
			p.pending = p.pending[1:]
			return ev, nil
		}
		var ws unix.WaitStatus
		tid, err := unix.Wait4(-1, &ws, unix.WALL|unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "wait4")
		}
		if tid == 0 {
			if !time.Now().Before(deadline) {
				return nil, nil
			}
			time.Sleep(pollInterval)
			continue
		}
		if err := p.decode(tid, ws); err != nil {
			return nil, err
		}
	}
}

// decode turns a wait status into zero or more pending events.
func (p *ptraceProcess) decode(tid int, ws unix.WaitStatus) error {
	switch {
	case ws.Exited(), ws.Signaled():
		code := ws.ExitStatus()
		if ws.Signaled() {
			code = 128 + int(ws.Signal())
		}
		delete(p.threads, tid)
		if tid == p.pid {
			p.push(&Event{ProcessID: p.pid, ThreadID: tid, Payload: &ProcessExited{ExitCode: code}})
		} else {
			p.push(&Event{ProcessID: p.pid, ThreadID: tid, Payload: &ThreadExited{ExitCode: code}})
		}
		return nil
	case ws.Stopped():
		return p.decodeStop(tid, ws)
	}
	p.push(&Event{ProcessID: p.pid, ThreadID: tid, Payload: &Unknown{Description: fmt.Sprintf("wait status %#x", uint32(ws))}})
	return nil
}

func (p *ptraceProcess) decodeStop(tid int, ws unix.WaitStatus) error {
	sig := ws.StopSignal()
	th, known := p.threads[tid]
	if !known {
		// A new thread can report its initial stop before the clone
		// event of its parent.
		p.threads[tid] = &threadState{stopped: true}
		if sig == unix.SIGSTOP {
			p.push(&Event{ProcessID: p.pid, ThreadID: tid, Payload: &ThreadCreated{Thread: ThreadHandle(tid)}})
			return nil
		}
		th = p.threads[tid]
		p.push(&Event{ProcessID: p.pid, ThreadID: tid, Payload: &ThreadCreated{Thread: ThreadHandle(tid)}})
	}
	th.stopped = true
	th.signal = 0

	if th.expectStop && sig == unix.SIGSTOP {
		th.expectStop = false
		return p.resume(tid, th, 0)
	}
	if sig == unix.SIGTRAP && ws.TrapCause() == unix.PTRACE_EVENT_CLONE {
		msg, err := unix.PtraceGetEventMsg(tid)
		if err != nil {
			return errors.Wrapf(err, "reading clone event of thread %d", tid)
		}
		if err := p.resume(tid, th, 0); err != nil {
			return err
		}
		child := int(msg)
		if _, ok := p.threads[child]; ok {
			return nil
		}
		p.threads[child] = &threadState{expectStop: true}
		p.push(&Event{ProcessID: p.pid, ThreadID: child, Payload: &ThreadCreated{Thread: ThreadHandle(child)}})
		return nil
	}
	if sig == unix.SIGTRAP && ws.TrapCause() > 0 {
		log.Logger.Debugf("thread %d: ignoring ptrace event %d", tid, ws.TrapCause())
		return p.resume(tid, th, 0)
	}

	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(tid, &regs); err != nil {
		return errors.Wrapf(err, "reading registers of thread %d", tid)
	}
	code, addr := ExceptionCode(sig), regs.PC()
	if sig == unix.SIGTRAP {
		siCode, err := trapCode(tid)
		if err != nil {
			return errors.Wrapf(err, "reading signal info of thread %d", tid)
		}
		code, addr = classifyTrap(siCode, addr)
		if p.followModules {
			if err := p.scanModules(); err != nil {
				return err
			}
		}
	}
	th.signal = sig
	p.push(&Event{
		ProcessID: p.pid,
		ThreadID:  tid,
		Payload:   &Exception{FirstChance: true, Code: code, Address: addr},
	})
	return nil
}

func (p *ptraceProcess) resume(tid int, th *threadState, sig unix.Signal) error {
	th.stopped = false
	err := unix.PtraceCont(tid, int(sig))
	if err == unix.ESRCH {
		// The thread died while stopped; its exit is reported separately.
		return nil
	}
	return errors.Wrapf(err, "resuming thread %d", tid)
}

func (p *ptraceProcess) Continue(processID, threadID int, status ContinueStatus) error {
	th, ok := p.threads[threadID]
	if !ok || !th.stopped {
		return nil
	}
	sig := th.signal
	if status == Handled {
		sig = 0
	}
	return p.resume(threadID, th, sig)
}

func (p *ptraceProcess) ReadMemory(processID int, addr uint64, buf []byte) error {
	_, err := p.mem.ReadAt(buf, int64(addr))
	return errors.Wrapf(err, "reading %d bytes at %#x", len(buf), addr)
}

func (p *ptraceProcess) WriteMemory(processID int, addr uint64, data []byte) error {
	_, err := p.mem.WriteAt(data, int64(addr))
	return errors.Wrapf(err, "writing %d bytes at %#x", len(data), addr)
}

func (p *ptraceProcess) ThreadContext(thread ThreadHandle) (Context, error) {
	regs := new(unix.PtraceRegs)
	if err := unix.PtraceGetRegs(int(thread), regs); err != nil {
		return nil, err
	}
	return regs, nil
}

func (p *ptraceProcess) SetThreadContext(thread ThreadHandle, ctx Context) error {
	regs, ok := ctx.(*unix.PtraceRegs)
	if !ok {
		return errors.Errorf("unexpected context type %T", ctx)
	}
	return unix.PtraceSetRegs(int(thread), regs)
}

// scanModules reports ELF objects mapped since the last scan.
func (p *ptraceProcess) scanModules() error {
	images, err := p.mappedImages()
	if err != nil {
		return err
	}
	for path, base := range images {
		if p.modules[path] {
			continue
		}
		p.modules[path] = true
		p.push(&Event{ProcessID: p.pid, Payload: &ModuleLoaded{Path: path, Base: base}})
	}
	return nil
}

// mappedImages returns the start of the first mapping of every ELF file
// mapped into the process.
func (p *ptraceProcess) mappedImages() (map[string]uint64, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/maps", p.pid))
	if err != nil {
		return nil, errors.Wrap(err, "reading memory map")
	}
	images := make(map[string]uint64)
	s := bufio.NewScanner(bytes.NewReader(data))
	for s.Scan() {
		// 55d0c4a00000-55d0c4a02000 r--p 00000000 fd:01 1234 /usr/bin/prog
		fields := strings.Fields(s.Text())
		if len(fields) < 6 || fields[2] != "00000000" || !strings.HasPrefix(fields[5], "/") {
			continue
		}
		path := strings.Join(fields[5:], " ")
		if _, ok := images[path]; ok || !isELF(path) {
			continue
		}
		start, err := strconv.ParseUint(strings.SplitN(fields[0], "-", 2)[0], 16, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing mapping %q", s.Text())
		}
		images[path] = start
	}
	return images, s.Err()
}

func isELF(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	magic := make([]byte, 4)
	if _, err := f.Read(magic); err != nil {
		return false
	}
	return bytes.Equal(magic, []byte("\x7fELF"))
}

func (p *ptraceProcess) Kill() error {
	err := unix.Kill(p.pid, unix.SIGKILL)
	if err == unix.ESRCH {
		return nil
	}
	return err
}

func (p *ptraceProcess) Close() error {
	if p.mem == nil {
		return nil
	}
	err := p.mem.Close()
	p.mem = nil
	return err
}
