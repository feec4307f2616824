// Package tmux is the session directory: it consults the local tmux server
// for the sessions a browser can attach to. All state lives in tmux itself;
// this package only shells out and parses.
package tmux

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// listFormat matches the fields parsed by List.
const listFormat = "#{session_name}|#{session_created}|#{session_attached}|#{session_windows}|#{session_width}|#{session_height}"

const (
	probeTimeout   = 5 * time.Second
	commandTimeout = 10 * time.Second
)

var nameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// NotFoundError reports an operation on a session that does not exist.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session %q does not exist", e.Name)
}

// ConflictError reports creation of a session whose name is taken.
type ConflictError struct {
	Name string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("session %q already exists", e.Name)
}

// Session describes one tmux session.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Attached  bool      `json:"attached"`
	Windows   int       `json:"windows"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
}

// Runner executes a command and returns its combined output. The indirection
// lets tests substitute a fake tmux.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// OSRunner executes commands on the local machine.
type OSRunner struct{}

func (OSRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// Service manages tmux sessions on the local server.
type Service struct {
	runner Runner
}

func NewService() *Service {
	return &Service{runner: OSRunner{}}
}

func NewServiceWithRunner(runner Runner) *Service {
	return &Service{runner: runner}
}

// ServerAvailable reports whether the tmux binary responds.
func (s *Service) ServerAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	_, err := s.runner.Run(ctx, "tmux", "-V")
	return err == nil
}

// List returns all sessions. A tmux server that isn't running yet is an
// empty list, not an error.
func (s *Service) List(ctx context.Context) ([]Session, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	out, err := s.runner.Run(ctx, "tmux", "list-sessions", "-F", listFormat)
	if err != nil {
		low := strings.ToLower(string(out))
		if strings.Contains(low, "no server running") || strings.Contains(low, "no sessions") {
			return nil, nil
		}
		return nil, fmt.Errorf("list sessions: %w: %s", err, strings.TrimSpace(string(out)))
	}

	var sessions []Session
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		sess, ok := parseSessionLine(line)
		if !ok {
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func parseSessionLine(line string) (Session, bool) {
	parts := strings.Split(line, "|")
	if len(parts) < 4 {
		return Session{}, false
	}
	created, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Session{}, false
	}
	windows, err := strconv.Atoi(parts[3])
	if err != nil {
		return Session{}, false
	}
	sess := Session{
		ID:        parts[0],
		Name:      parts[0],
		CreatedAt: time.Unix(created, 0),
		Attached:  parts[2] == "1",
		Windows:   windows,
	}
	if len(parts) > 4 && parts[4] != "" {
		sess.Width, _ = strconv.Atoi(parts[4])
	}
	if len(parts) > 5 && parts[5] != "" {
		sess.Height, _ = strconv.Atoi(parts[5])
	}
	return sess, true
}

// Exists reports whether the named session exists.
func (s *Service) Exists(ctx context.Context, name string) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	_, err := s.runner.Run(ctx, "tmux", "has-session", "-t", name)
	return err == nil
}

// Get returns the named session, or nil when it does not exist.
func (s *Service) Get(ctx context.Context, name string) (*Session, error) {
	sessions, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].ID == name {
			return &sessions[i], nil
		}
	}
	return nil, nil
}

// Create starts a new detached session. An empty name gets a generated
// timestamp-based one.
func (s *Service) Create(ctx context.Context, name string) (*Session, error) {
	if name == "" {
		name = "session-" + time.Now().Format("20060102-150405")
	}
	if !nameRe.MatchString(name) {
		return nil, fmt.Errorf("invalid session name %q: use only letters, numbers, - and _", name)
	}
	if s.Exists(ctx, name) {
		return nil, &ConflictError{Name: name}
	}

	runCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	out, err := s.runner.Run(runCtx, "tmux", "new-session", "-d", "-s", name)
	if err != nil {
		// Someone created the name between the existence probe and here.
		if strings.Contains(strings.ToLower(string(out)), "duplicate session") {
			return nil, &ConflictError{Name: name}
		}
		return nil, fmt.Errorf("create session: %w: %s", err, strings.TrimSpace(string(out)))
	}

	sess, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("session %q was created but not found in list", name)
	}
	return sess, nil
}

// Kill terminates the named session.
func (s *Service) Kill(ctx context.Context, name string) error {
	if !s.Exists(ctx, name) {
		return &NotFoundError{Name: name}
	}

	runCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	out, err := s.runner.Run(runCtx, "tmux", "kill-session", "-t", name)
	if err != nil {
		return fmt.Errorf("kill session: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// AttachCommand returns the argv that attaches a new process to the session.
func (s *Service) AttachCommand(id string) []string {
	return []string{"tmux", "attach-session", "-t", id}
}
