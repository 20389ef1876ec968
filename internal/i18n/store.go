package i18n

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// StorageKey names the persisted language preference.
const StorageKey = "@crazy_cooker_language"

// LocaleStore persists the selected language code. Load reports found=false
// when nothing has been saved yet.
type LocaleStore interface {
	Load(ctx context.Context) (code string, found bool, err error)
	Save(ctx context.Context, code string) error
}

// MemoryStore keeps the preference for the life of the process.
type MemoryStore struct {
	mu    sync.Mutex
	code  string
	found bool
	err   error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FailWith makes subsequent calls return err.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryStore) Load(_ context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	return m.code, m.found, nil
}

func (m *MemoryStore) Save(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.code = code
	m.found = true
	return nil
}

// FileStore keeps the preference in a small JSON document on disk, the
// device-local key-value analogue.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type fileDocument map[string]string

func (f *FileStore) Load(_ context.Context) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		return "", false, err
	}
	code, ok := doc[StorageKey]
	return code, ok, nil
}

func (f *FileStore) Save(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		doc = fileDocument{}
	}
	doc[StorageKey] = code

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode locale file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create locale dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".language-*.json")
	if err != nil {
		return fmt.Errorf("create locale temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write locale file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close locale file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace locale file: %w", err)
	}
	return nil
}

func (f *FileStore) read() (fileDocument, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return fileDocument{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read locale file: %w", err)
	}
	doc := fileDocument{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode locale file: %w", err)
	}
	return doc, nil
}
