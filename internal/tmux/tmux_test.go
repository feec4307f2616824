package tmux

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// fakeRunner scripts tmux responses per subcommand.
type fakeRunner struct {
	// sessions present on the fake server, keyed by name.
	sessions map[string]string // name -> list-sessions line
	calls    []string
	failList error

	// createOut/createErr script the next new-session result, simulating
	// races the probe cannot see.
	createOut string
	createErr error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{sessions: make(map[string]string)}
}

func (r *fakeRunner) add(name, line string) {
	r.sessions[name] = line
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, strings.Join(append([]string{name}, args...), " "))
	if name != "tmux" {
		return nil, fmt.Errorf("unexpected command %q", name)
	}
	switch args[0] {
	case "-V":
		return []byte("tmux 3.4\n"), nil
	case "list-sessions":
		if r.failList != nil {
			return []byte("error\n"), r.failList
		}
		if len(r.sessions) == 0 {
			return []byte("no server running on /tmp/tmux-0/default\n"), errors.New("exit status 1")
		}
		var lines []string
		for _, l := range r.sessions {
			lines = append(lines, l)
		}
		return []byte(strings.Join(lines, "\n") + "\n"), nil
	case "has-session":
		target := args[len(args)-1]
		if _, ok := r.sessions[target]; ok {
			return nil, nil
		}
		return []byte("can't find session\n"), errors.New("exit status 1")
	case "new-session":
		if r.createErr != nil {
			return []byte(r.createOut), r.createErr
		}
		target := args[len(args)-1]
		r.sessions[target] = fmt.Sprintf("%s|1700000000|0|1|80|24", target)
		return nil, nil
	case "kill-session":
		target := args[len(args)-1]
		delete(r.sessions, target)
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected tmux subcommand %q", args[0])
}

func TestListEmptyServer(t *testing.T) {
	svc := NewServiceWithRunner(newFakeRunner())

	sessions, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("got %d sessions, want 0", len(sessions))
	}
}

func TestListParsesFields(t *testing.T) {
	r := newFakeRunner()
	r.add("main", "main|1700000000|1|3|120|40")
	svc := NewServiceWithRunner(r)

	sessions, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	s := sessions[0]
	if s.ID != "main" || s.Name != "main" {
		t.Errorf("id/name = %q/%q, want main", s.ID, s.Name)
	}
	if !s.Attached {
		t.Error("want attached")
	}
	if s.Windows != 3 || s.Width != 120 || s.Height != 40 {
		t.Errorf("windows/width/height = %d/%d/%d, want 3/120/40", s.Windows, s.Width, s.Height)
	}
	if s.CreatedAt.Unix() != 1700000000 {
		t.Errorf("created = %d, want 1700000000", s.CreatedAt.Unix())
	}
}

func TestListSkipsMalformedLines(t *testing.T) {
	r := newFakeRunner()
	r.add("good", "good|1700000000|0|1|80|24")
	r.add("bad", "bad|notatime|0")
	svc := NewServiceWithRunner(r)

	sessions, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "good" {
		t.Errorf("sessions = %+v, want just good", sessions)
	}
}

func TestListRealError(t *testing.T) {
	r := newFakeRunner()
	r.add("x", "x|1700000000|0|1|80|24")
	r.failList = errors.New("exit status 127")
	svc := NewServiceWithRunner(r)

	if _, err := svc.List(context.Background()); err == nil {
		t.Fatal("expected error when tmux fails")
	}
}

func TestGet(t *testing.T) {
	r := newFakeRunner()
	r.add("main", "main|1700000000|0|1|80|24")
	svc := NewServiceWithRunner(r)

	sess, err := svc.Get(context.Background(), "main")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess == nil || sess.ID != "main" {
		t.Fatalf("sess = %+v, want main", sess)
	}

	missing, err := svc.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get missing: %v", err)
	}
	if missing != nil {
		t.Errorf("got %+v for missing session, want nil", missing)
	}
}

func TestCreate(t *testing.T) {
	svc := NewServiceWithRunner(newFakeRunner())

	sess, err := svc.Create(context.Background(), "work")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.Name != "work" {
		t.Errorf("name = %q, want work", sess.Name)
	}
}

func TestCreateGeneratedName(t *testing.T) {
	svc := NewServiceWithRunner(newFakeRunner())

	sess, err := svc.Create(context.Background(), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(sess.Name, "session-") {
		t.Errorf("generated name = %q, want session- prefix", sess.Name)
	}
}

func TestCreateInvalidName(t *testing.T) {
	svc := NewServiceWithRunner(newFakeRunner())

	for _, bad := range []string{"has space", "semi;colon", "dollar$", "a/b"} {
		if _, err := svc.Create(context.Background(), bad); err == nil {
			t.Errorf("Create(%q) succeeded, want error", bad)
		}
	}
}

func TestCreateConflict(t *testing.T) {
	r := newFakeRunner()
	r.add("work", "work|1700000000|0|1|80|24")
	svc := NewServiceWithRunner(r)

	_, err := svc.Create(context.Background(), "work")
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want ConflictError", err)
	}
}

func TestKill(t *testing.T) {
	r := newFakeRunner()
	r.add("work", "work|1700000000|0|1|80|24")
	svc := NewServiceWithRunner(r)

	if err := svc.Kill(context.Background(), "work"); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if svc.Exists(context.Background(), "work") {
		t.Error("session still exists after Kill")
	}
}

func TestKillMissing(t *testing.T) {
	svc := NewServiceWithRunner(newFakeRunner())

	err := svc.Kill(context.Background(), "ghost")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestAttachCommand(t *testing.T) {
	svc := NewServiceWithRunner(newFakeRunner())

	argv := svc.AttachCommand("main")
	want := "tmux attach-session -t main"
	if strings.Join(argv, " ") != want {
		t.Errorf("argv = %v, want %q", argv, want)
	}
}

func TestServerAvailable(t *testing.T) {
	svc := NewServiceWithRunner(newFakeRunner())
	if !svc.ServerAvailable(context.Background()) {
		t.Error("fake server should be available")
	}
}

func TestCreateLosingRaceIsConflict(t *testing.T) {
	// The existence probe says the name is free, but another client grabs
	// it before new-session runs.
	r := newFakeRunner()
	r.createOut = "duplicate session: build\n"
	r.createErr = errors.New("exit status 1")
	svc := NewServiceWithRunner(r)

	_, err := svc.Create(context.Background(), "build")
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want ConflictError", err)
	}
	if conflict.Name != "build" {
		t.Errorf("conflict names %q, want build", conflict.Name)
	}
}
