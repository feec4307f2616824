// Package term owns the process side of a browser terminal: spawning the
// attach command on a pseudo-terminal and bridging its byte stream to one
// connection.
package term

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"unsafe"

	"github.com/creack/pty"
)

// readChunkSize bounds a single non-blocking PTY read.
const readChunkSize = 4096

// Default terminal geometry applied before the client's first resize.
const (
	DefaultCols uint16 = 80
	DefaultRows uint16 = 24
)

// Process runs one child on a pseudo-terminal. It owns the PTY master and
// the child's lifetime: Terminate closes the master, kills the child and
// reaps it. One Process serves one Start; a failed Start is not retried on
// the same instance.
type Process struct {
	mu   sync.Mutex
	cmd  *exec.Cmd
	ptmx *os.File

	// fd is the raw master descriptor, captured exactly once in Start.
	// os.File.Fd() puts the descriptor back into blocking mode every time
	// it is called, so after Start nothing may call Fd() again: all reads,
	// writes and ioctls go through this int. -1 once closed.
	fd int

	// done is closed once the child has been reaped.
	done    chan struct{}
	exitErr error
}

func NewProcess() *Process {
	return &Process{fd: -1}
}

// Start spawns argv with the PTY slave as its controlling terminal and
// switches the master to non-blocking mode.
func (p *Process) Start(argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty attach command")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return fmt.Errorf("process already started")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("spawn %s: %w", argv[0], err)
	}

	// The one and only Fd() call: it flips the descriptor to blocking,
	// which SetNonblock immediately undoes.
	fd := int(ptmx.Fd())
	if err := syscall.SetNonblock(fd, true); err != nil {
		ptmx.Close()
		cmd.Process.Kill()
		cmd.Wait()
		return fmt.Errorf("set non-blocking: %w", err)
	}

	p.cmd = cmd
	p.ptmx = ptmx
	p.fd = fd
	p.done = make(chan struct{})

	// Reap the child as soon as it exits so IsAlive never sees a zombie.
	go func() {
		p.exitErr = cmd.Wait()
		close(p.done)
	}()

	return nil
}

// ReadChunk performs a single non-blocking read of up to readChunkSize
// bytes. No pending data, a closed descriptor, or any read error all
// come back as an empty result; a dead child surfaces through IsAlive.
func (p *Process) ReadChunk() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fd < 0 {
		return nil
	}

	buf := make([]byte, readChunkSize)
	n, err := syscall.Read(p.fd, buf)
	if err != nil || n <= 0 {
		return nil
	}
	return buf[:n]
}

// Write sends data to the PTY. Failures are dropped: they mean the child
// is gone, which the pumps observe via IsAlive.
func (p *Process) Write(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fd < 0 {
		return
	}
	for len(data) > 0 {
		n, err := syscall.Write(p.fd, data)
		if err != nil || n <= 0 {
			// Includes EAGAIN on a full PTY buffer: input is
			// best-effort, so the remainder is dropped.
			return
		}
		data = data[n:]
	}
}

// Resize applies new terminal dimensions. Ignored once the descriptor is
// closed. The ioctl is issued on the raw fd directly; pty.Setsize would go
// through Fd() and re-enable blocking mode.
func (p *Process) Resize(cols, rows uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fd < 0 {
		return
	}
	ws := pty.Winsize{Rows: rows, Cols: cols}
	_, _, _ = syscall.Syscall(syscall.SYS_IOCTL, uintptr(p.fd),
		uintptr(syscall.TIOCSWINSZ), uintptr(unsafe.Pointer(&ws)))
}

// IsAlive reports whether the child is still running. It never blocks and
// never probes a reaped process.
func (p *Process) IsAlive() bool {
	p.mu.Lock()
	done := p.done
	started := p.cmd != nil
	p.mu.Unlock()

	if !started {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Terminate closes the master descriptor, kills the child and waits for it
// to be reaped. It is idempotent, tolerates a Start that never happened or
// failed, and may race with in-flight reads and writes.
func (p *Process) Terminate() {
	p.mu.Lock()
	if p.ptmx != nil {
		p.ptmx.Close()
		p.ptmx = nil
		p.fd = -1
	}
	cmd := p.cmd
	done := p.done
	p.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		// ErrProcessDone and ESRCH just mean we lost the race with exit.
		_ = cmd.Process.Kill()
	}
	if done != nil {
		<-done
	}
}
