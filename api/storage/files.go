package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SavedFile describes an uploaded document on disk
type SavedFile struct {
	DocID        string
	OriginalName string
	StoredPath   string
	SHA256       string
	SizeBytes    int64
}

// FileStore keeps uploaded PDFs under a content-addressed name, so the same bytes
// are only ever written once.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("storage: create upload dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes content as <sha256>__<safe name>.pdf unless it already exists.
// The document id is the content hash.
func (s *FileStore) Save(content []byte, originalName string) (SavedFile, error) {
	sum := sha256.Sum256(content)
	sha := hex.EncodeToString(sum[:])

	storedName := sha + "__" + SafeFilename(originalName)
	if !strings.HasSuffix(strings.ToLower(storedName), ".pdf") {
		storedName += ".pdf"
	}
	storedPath := filepath.Join(s.dir, storedName)

	if _, err := os.Stat(storedPath); errors.Is(err, fs.ErrNotExist) {
		if err := writeFileAtomic(storedPath, content); err != nil {
			return SavedFile{}, fmt.Errorf("storage: write upload: %w", err)
		}
	} else if err != nil {
		return SavedFile{}, fmt.Errorf("storage: stat upload: %w", err)
	}

	return SavedFile{
		DocID:        sha,
		OriginalName: originalName,
		StoredPath:   storedPath,
		SHA256:       sha,
		SizeBytes:    int64(len(content)),
	}, nil
}

// SafeFilename replaces characters outside [a-zA-Z0-9._-] with underscores
func SafeFilename(name string) string {
	name = unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(name), "_")
	if name == "" {
		return "uploaded.pdf"
	}
	return name
}

func writeFileAtomic(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
