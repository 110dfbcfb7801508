// Package upload stores files that test scripts upload through the proxy.
//
// Files live under {root}/{sessionId}/ and are addressed by base name only,
// so a session can never read outside its own directory.
package upload

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrInvalidName is returned for empty or path-like file names
	ErrInvalidName = errors.New("invalid file name")
	// ErrMismatch is returned when names and data differ in length
	ErrMismatch = errors.New("file names and data length mismatch")
)

// StoredFile is the outcome of storing one file
type StoredFile struct {
	Path string `json:"path"`
	Err  string `json:"err,omitempty"`
}

// FileInfo describes an uploaded file
type FileInfo struct {
	Type             string `json:"type"`
	Name             string `json:"name"`
	Size             int64  `json:"size"`
	LastModifiedDate string `json:"lastModifiedDate"`
}

// File is an uploaded file read back for the client
type File struct {
	Path string    `json:"path,omitempty"`
	Data string    `json:"data,omitempty"`
	Info *FileInfo `json:"info,omitempty"`
	Err  string    `json:"err,omitempty"`
}

// Storage keeps uploaded files on the local filesystem
type Storage struct {
	root string
}

// NewStorage creates a storage rooted at root
func NewStorage(root string) *Storage {
	return &Storage{root: root}
}

// Root returns the uploads root directory
func (s *Storage) Root() string {
	return s.root
}

// Store writes base64 encoded files for a session. Per-file failures are
// reported in the result; only context cancellation aborts the batch.
func (s *Storage) Store(ctx context.Context, sessionID string, fileNames, data []string) ([]StoredFile, error) {
	if len(fileNames) != len(data) {
		return nil, ErrMismatch
	}

	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	results := make([]StoredFile, 0, len(fileNames))
	for i, name := range fileNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		results = append(results, s.storeOne(dir, name, data[i]))
	}
	return results, nil
}

func (s *Storage) storeOne(dir, name, data string) StoredFile {
	if err := validateName(name); err != nil {
		return StoredFile{Path: name, Err: err.Error()}
	}

	content, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return StoredFile{Path: name, Err: fmt.Sprintf("decode %s: %v", name, err)}
	}

	if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
		return StoredFile{Path: name, Err: err.Error()}
	}
	return StoredFile{Path: name}
}

// Get reads uploaded files back, base64 encoded with their metadata
func (s *Storage) Get(ctx context.Context, sessionID string, paths []string) ([]File, error) {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return nil, err
	}

	files := make([]File, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files = append(files, s.getOne(dir, p))
	}
	return files, nil
}

func (s *Storage) getOne(dir, name string) File {
	if err := validateName(name); err != nil {
		return File{Path: name, Err: err.Error()}
	}

	fullPath := filepath.Join(dir, name)
	content, err := os.ReadFile(fullPath)
	if err != nil {
		return File{Path: name, Err: fmt.Sprintf("cannot find the %s file", name)}
	}

	stat, err := os.Stat(fullPath)
	if err != nil {
		return File{Path: name, Err: err.Error()}
	}

	return File{
		Data: base64.StdEncoding.EncodeToString(content),
		Info: &FileInfo{
			Type:             mimetype.Detect(content).String(),
			Name:             name,
			Size:             stat.Size(),
			LastModifiedDate: stat.ModTime().UTC().Format(time.RFC3339),
		},
	}
}

// Path returns the on-disk path of an uploaded file
func (s *Storage) Path(sessionID, name string) (string, error) {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return "", err
	}
	if err := validateName(name); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// List returns the names of a session's files matching a glob pattern.
// An empty pattern matches everything.
func (s *Storage) List(sessionID, pattern string) ([]string, error) {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = "**"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list uploads: %w", err)
	}

	sort.Strings(matches)
	return matches, nil
}

// Remove deletes every file of a session
func (s *Storage) Remove(sessionID string) error {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

func (s *Storage) sessionDir(sessionID string) (string, error) {
	if err := validateName(sessionID); err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}
	return filepath.Join(s.root, sessionID), nil
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
