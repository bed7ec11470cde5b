// Package blob gives temporary files an explicit owner. A Scope is a
// directory; everything created inside it is removed by Release.
package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		root = filepath.Join(os.TempDir(), "pdf_batch_bot")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string {
	return s.root
}

// SessionDir is stable per chat so images survive between updates.
func (s *Store) SessionDir(chatID int64) string {
	return filepath.Join(s.root, "chat_"+strconv.FormatInt(chatID, 10))
}

// Session opens (creating if needed) the scope that holds a chat's pending images.
func (s *Store) Session(chatID int64) (*Scope, error) {
	dir := s.SessionDir(chatID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &Scope{dir: dir}, nil
}

// ReleaseSession removes everything stored for a chat.
func (s *Store) ReleaseSession(chatID int64) error {
	return os.RemoveAll(s.SessionDir(chatID))
}

// RemoveSessionFiles deletes the given files when they live in the chat's
// session directory. Paths elsewhere are ignored.
func (s *Store) RemoveSessionFiles(chatID int64, paths []string) error {
	sc := &Scope{dir: s.SessionDir(chatID)}
	var firstErr error
	for _, p := range paths {
		if p == "" || !sc.Owns(p) {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StaleSessions lists chats whose session directory was last modified
// before cutoff.
func (s *Store) StaleSessions(cutoff time.Time) ([]int64, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var out []int64
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "chat_") {
			continue
		}
		chatID, err := strconv.ParseInt(strings.TrimPrefix(e.Name(), "chat_"), 10, 64)
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			out = append(out, chatID)
		}
	}
	return out, nil
}

// Temp opens a short-lived scope, e.g. for one conversion run.
func (s *Store) Temp(prefix string) (*Scope, error) {
	dir, err := os.MkdirTemp(s.root, prefix+"_")
	if err != nil {
		return nil, fmt.Errorf("create temp scope: %w", err)
	}
	return &Scope{dir: dir}, nil
}

type Scope struct {
	dir      string
	mu       sync.Mutex
	released bool
}

func (sc *Scope) Dir() string {
	return sc.dir
}

// Path reserves a unique file name inside the scope without creating it.
func (sc *Scope) Path(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "blob"
	}
	return filepath.Join(sc.dir, uuid.NewString()[:8]+"_"+name)
}

// Write stores r under a unique name and returns the path and byte count.
func (sc *Scope) Write(name string, r io.Reader) (string, int64, error) {
	path := sc.Path(name)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, err
	}
	return path, n, nil
}

// Owns reports whether path lives inside this scope.
func (sc *Scope) Owns(path string) bool {
	rel, err := filepath.Rel(sc.dir, path)
	return err == nil && !strings.HasPrefix(rel, "..") && rel != "."
}

// Release removes the scope. Safe to call more than once.
func (sc *Scope) Release() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.released {
		return nil
	}
	sc.released = true
	return os.RemoveAll(sc.dir)
}
