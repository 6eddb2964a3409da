package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/briangreenhill/buddy/cache"
)

// fileEntry is the on-disk envelope. Key is kept so hashed filenames can be
// listed back to their original key.
type fileEntry struct {
	Key       string    `json:"key"`
	UpdatedAt time.Time `json:"updated_at"`
	Value     []byte    `json:"value"`
}

// File stores one JSON file per key under a directory.
type File struct {
	dir string
}

// NewFile creates dir if needed. An empty dir means ~/.buddy.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &File{dir: dir}, nil
}

// DefaultDir is ~/.buddy.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home dir: %w", err)
	}
	return filepath.Join(home, ".buddy"), nil
}

func (f *File) Dir() string { return f.dir }

func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	e, err := f.read(f.path(key))
	if err != nil {
		return nil, err
	}
	if e.Key != key {
		return nil, ErrNotFound
	}
	return e.Value, nil
}

func (f *File) Put(_ context.Context, key string, value []byte) error {
	data, err := json.MarshalIndent(fileEntry{Key: key, UpdatedAt: time.Now().UTC(), Value: value}, "", "  ")
	if err != nil {
		return err
	}

	path := f.path(key)
	// Write to a temp file then rename so readers never see half a value.
	tmp := path + fmt.Sprintf(".tmp.%d", rand.Int())
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (f *File) Delete(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (f *File) Keys(_ context.Context, prefix string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(f.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, m := range matches {
		e, err := f.read(m)
		if err != nil {
			continue
		}
		if strings.HasPrefix(e.Key, prefix) {
			out = append(out, e.Key)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *File) read(path string) (*fileEntry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var e fileEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &e, nil
}

// path maps key to its file. Keys that sanitizing would alter get a hash
// suffix so that, say, "a/b_c" and "a_b/c" never share a file.
func (f *File) path(key string) string {
	name := cache.KeyFor(key, nil)
	if name != key && !strings.HasPrefix(name, "hash_") {
		name += "~" + strings.TrimPrefix(cache.HashKey(key), "hash_")[:16]
	}
	return filepath.Join(f.dir, name+".json")
}
