package term

import (
	"fmt"
	"sync"
)

// Directory resolves a session id to the argv that attaches to it. The
// bridge depends on nothing else from the session layer.
type Directory interface {
	AttachCommand(id string) []string
}

// Bridge couples one PTY-attached process to one logical client connection
// for the duration of an attach. The connection handler owns it exclusively;
// there is no cross-connection sharing.
type Bridge struct {
	dir       Directory
	sessionID string
	proc      *Process

	mu      sync.Mutex
	started bool
	closed  bool
	cols    uint16
	rows    uint16
}

func NewBridge(dir Directory, sessionID string) *Bridge {
	return &Bridge{
		dir:       dir,
		sessionID: sessionID,
		proc:      NewProcess(),
		cols:      DefaultCols,
		rows:      DefaultRows,
	}
}

// Start resolves the attach command and spawns it, then applies the default
// 80x24 geometry so the program sees a sane terminal before the client's
// first resize. The lock is held across the spawn: a concurrent Close waits
// behind it and then terminates the freshly started process instead of
// racing past the closed check and leaking it.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("bridge already closed")
	}
	if b.started {
		return fmt.Errorf("bridge already started")
	}

	argv := b.dir.AttachCommand(b.sessionID)
	if err := b.proc.Start(argv); err != nil {
		return fmt.Errorf("start session %q: %w", b.sessionID, err)
	}
	b.started = true

	b.proc.Resize(DefaultCols, DefaultRows)
	return nil
}

// Resize forwards new dimensions to the PTY and tracks them as the current
// geometry.
func (b *Bridge) Resize(cols, rows uint16) {
	b.mu.Lock()
	b.cols = cols
	b.rows = rows
	b.mu.Unlock()

	b.proc.Resize(cols, rows)
}

// Size returns the last applied geometry.
func (b *Bridge) Size() (cols, rows uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cols, b.rows
}

// ReadOutput returns pending PTY output, or empty when none is available.
// It never blocks.
func (b *Bridge) ReadOutput() []byte {
	return b.proc.ReadChunk()
}

// WriteInput sends raw bytes to the PTY.
func (b *Bridge) WriteInput(data []byte) {
	b.proc.Write(data)
}

// IsRunning is true only while the attached process is alive.
func (b *Bridge) IsRunning() bool {
	b.mu.Lock()
	if b.closed || !b.started {
		b.mu.Unlock()
		return false
	}
	b.mu.Unlock()
	return b.proc.IsAlive()
}

// Close tears the bridge down: the process is killed and reaped and the PTY
// descriptor released. Safe to call multiple times and concurrently with
// in-flight reads and writes.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.proc.Terminate()
}

// SessionID names the session this bridge is attached to.
func (b *Bridge) SessionID() string {
	return b.sessionID
}
