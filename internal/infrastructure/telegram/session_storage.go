package telegram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gotd/td/session"

	"github.com/dapen17/vps1/internal/domain"
)

const sessionFileExt = ".session"

// SessionStore keeps the MTProto sessions of all attached accounts
type SessionStore interface {
	// Storage returns the gotd session storage for one account
	Storage(ctx context.Context, ref domain.SessionRef) (session.Storage, error)

	// List returns every stored session
	List(ctx context.Context) ([]domain.SessionRef, error)

	// Delete removes a stored session. Deleting a missing session is not an error.
	Delete(ctx context.Context, ref domain.SessionRef) error

	// Export returns the raw session blob
	Export(ctx context.Context, ref domain.SessionRef) (domain.SessionFile, error)
}

// StatusRecorder is implemented by session stores that track account status
type StatusRecorder interface {
	RecordStatus(ctx context.Context, ref domain.SessionRef, account domain.Account, status string, lastErr error) error
}

// SessionFileName returns the session file name of an account, <owner>_<phone>.session
func SessionFileName(ref domain.SessionRef) string {
	return fmt.Sprintf("%d_%s%s", ref.OwnerID, ref.Phone, sessionFileExt)
}

// ParseSessionFileName is the inverse of SessionFileName
func ParseSessionFileName(name string) (domain.SessionRef, bool) {
	base, ok := strings.CutSuffix(name, sessionFileExt)
	if !ok {
		return domain.SessionRef{}, false
	}
	owner, phone, ok := strings.Cut(base, "_")
	if !ok || phone == "" {
		return domain.SessionRef{}, false
	}
	ownerID, err := strconv.ParseInt(owner, 10, 64)
	if err != nil {
		return domain.SessionRef{}, false
	}
	return domain.SessionRef{OwnerID: ownerID, Phone: phone}, true
}

// FileSessionStore keeps one session file per account in a directory
type FileSessionStore struct {
	sessionDir string
}

// NewFileSessionStore creates a file-based session store
func NewFileSessionStore(sessionDir string) (*FileSessionStore, error) {
	if sessionDir == "" {
		sessionDir = "./sessions"
	}
	if err := os.MkdirAll(sessionDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileSessionStore{sessionDir: sessionDir}, nil
}

// Storage returns the file storage of one account
func (s *FileSessionStore) Storage(_ context.Context, ref domain.SessionRef) (session.Storage, error) {
	return NewFileSessionStorage(filepath.Join(s.sessionDir, SessionFileName(ref))), nil
}

// List returns every session file in the directory, sorted by name
func (s *FileSessionStore) List(_ context.Context) ([]domain.SessionRef, error) {
	entries, err := os.ReadDir(s.sessionDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read session directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	refs := make([]domain.SessionRef, 0, len(names))
	for _, name := range names {
		if ref, ok := ParseSessionFileName(name); ok {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

// Delete removes the session file of an account
func (s *FileSessionStore) Delete(_ context.Context, ref domain.SessionRef) error {
	return NewFileSessionStorage(filepath.Join(s.sessionDir, SessionFileName(ref))).DeleteSession()
}

// Export reads the session file of an account
func (s *FileSessionStore) Export(ctx context.Context, ref domain.SessionRef) (domain.SessionFile, error) {
	data, err := NewFileSessionStorage(filepath.Join(s.sessionDir, SessionFileName(ref))).LoadSession(ctx)
	if err != nil {
		return domain.SessionFile{}, fmt.Errorf("failed to load session: %w", err)
	}
	return domain.SessionFile{Name: SessionFileName(ref), Data: data}, nil
}

// FileSessionStorage implements session.Storage on a single file
type FileSessionStorage struct {
	filePath string
}

// NewFileSessionStorage creates a file-based session storage
func NewFileSessionStorage(filePath string) *FileSessionStorage {
	return &FileSessionStorage{filePath: filePath}
}

// LoadSession loads session data from file
func (s *FileSessionStorage) LoadSession(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	// An empty file is treated as no session
	if len(data) == 0 {
		return nil, session.ErrNotFound
	}

	return data, nil
}

// StoreSession stores session data to file with restricted permissions
func (s *FileSessionStorage) StoreSession(_ context.Context, data []byte) error {
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// DeleteSession removes the session file
func (s *FileSessionStorage) DeleteSession() error {
	if err := os.Remove(s.filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// MemorySessionStorage keeps a session in memory while a login is in progress
type MemorySessionStorage struct {
	mu   sync.Mutex
	data []byte
}

// NewMemorySessionStorage creates a new memory session storage
func NewMemorySessionStorage() *MemorySessionStorage {
	return &MemorySessionStorage{}
}

// LoadSession loads session data from memory
func (s *MemorySessionStorage) LoadSession(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) == 0 {
		return nil, session.ErrNotFound
	}
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out, nil
}

// StoreSession stores session data in memory
func (s *MemorySessionStorage) StoreSession(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make([]byte, len(data))
	copy(s.data, data)
	return nil
}

var (
	_ SessionStore    = (*FileSessionStore)(nil)
	_ session.Storage = (*FileSessionStorage)(nil)
	_ session.Storage = (*MemorySessionStorage)(nil)
)
