package iox

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

type spyCloser struct{ calls int }

func (s *spyCloser) Close() error { s.calls++; return errors.New("ignored") }

func TestDiscardClose(t *testing.T) {
	s := &spyCloser{}
	DiscardClose(s)
	if s.calls != 1 {
		t.Fatalf("Close calls = %d, want 1", s.calls)
	}
}

func TestCloseFunc_Deferred(t *testing.T) {
	s := &spyCloser{}
	fn := CloseFunc(s)
	if s.calls != 0 {
		t.Fatal("Close ran before the returned func")
	}
	fn()
	if s.calls != 1 {
		t.Fatalf("Close calls = %d, want 1", s.calls)
	}
}

func TestDiscardErr(t *testing.T) {
	calls := 0
	DiscardErr(func() error {
		calls++
		return errors.New("ignored")
	})
	if calls != 1 {
		t.Fatalf("fn calls = %d, want 1", calls)
	}
}

func TestOpenInput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rc, err := OpenInput(path)
	if err != nil {
		t.Fatalf("OpenInput: %v", err)
	}
	t.Cleanup(CloseFunc(rc))

	data, err := io.ReadAll(rc)
	if err != nil || string(data) != "{}\n" {
		t.Errorf("read %q, %v", data, err)
	}
}

func TestOpenInput_Stdin(t *testing.T) {
	for _, path := range []string{"", Stdin} {
		rc, err := OpenInput(path)
		if err != nil {
			t.Fatalf("OpenInput(%q): %v", path, err)
		}
		if err := rc.Close(); err != nil {
			t.Errorf("Close on stdin wrapper: %v", err)
		}
	}
}

func TestOpenInput_Missing(t *testing.T) {
	_, err := OpenInput(filepath.Join(t.TempDir(), "absent"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist", err)
	}
}
