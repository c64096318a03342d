package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"f2_scrooper/models"
)

// ResultsStore owns the JSON documents the dashboard serves, one file per kind.
type ResultsStore struct {
	dir string
}

type WriteResult struct {
	Path        string
	Fingerprint string
	Body        []byte
	// Unchanged is set when the file already held identical bytes and was not rewritten.
	Unchanged bool
}

func NewResultsStore(dir string) (*ResultsStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	return &ResultsStore{dir: dir}, nil
}

func (s *ResultsStore) Path(kind models.DataKind) string {
	return filepath.Join(s.dir, kind.Filename())
}

func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Write encodes v and replaces the kind's document. The new file is written
// beside the old one and renamed over it, so readers never see a partial file.
func (s *ResultsStore) Write(kind models.DataKind, v any) (*WriteResult, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	body = append(body, '\n')

	res := &WriteResult{
		Path:        s.Path(kind),
		Fingerprint: Fingerprint(body),
		Body:        body,
	}

	if existing, err := os.ReadFile(res.Path); err == nil && bytes.Equal(existing, body) {
		res.Unchanged = true
		return res, nil
	}

	if err := writeAtomic(res.Path, body); err != nil {
		return nil, fmt.Errorf("write %s: %w", kind, err)
	}
	return res, nil
}

func (s *ResultsStore) Read(kind models.DataKind) ([]byte, error) {
	return os.ReadFile(s.Path(kind))
}

func writeAtomic(path string, body []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
