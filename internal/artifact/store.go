// Package artifact is the content-addressed output store. An artifact
// id is the hex SHA256 of the canonical content bytes, so identical
// content deduplicates to one file and a replayed run can be compared
// hash-for-hash against its original.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/idhash"
	"caller-alert-lab/internal/observability"
)

// ErrNotFound means no artifact carries the requested id.
var ErrNotFound = errors.New("artifact not found")

// Store is a directory of content-addressed artifacts. The only
// mutation is an atomic rename, so concurrent writers of the same
// content converge on one file without locks.
type Store struct {
	root string
}

// NewStore opens (and creates if needed) the artifact root directory.
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("artifact: root directory required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the store's directory.
func (s *Store) Root() string { return s.root }

// Put writes canonical content under its own hash and returns the
// artifact id. Content must already be in canonical form; the encode
// helpers in this package produce it. A second Put of the same bytes
// is a dedup, not an error.
func (s *Store) Put(kind domain.ArtifactKind, content []byte, parents ...string) (string, error) {
	id := idhash.HashBytes(content)

	dir := filepath.Join(s.root, id[:2])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("artifact: create bucket: %w", err)
	}

	path := filepath.Join(dir, id+extension(kind))
	if _, err := os.Stat(path); err == nil {
		observability.RecordArtifactWrite(len(content), true)
		return id, nil
	}

	if err := writeAtomic(path, content); err != nil {
		return "", fmt.Errorf("artifact: write %s: %w", id, err)
	}

	desc := domain.ArtifactDescriptor{
		ArtifactID:  id,
		Kind:        kind,
		ContentHash: id,
		CreatedAt:   time.Now().UTC(),
		Status:      domain.ArtifactActive,
		Lineage:     parents,
	}
	meta, err := json.Marshal(desc)
	if err != nil {
		return "", fmt.Errorf("artifact: encode descriptor: %w", err)
	}
	if err := writeAtomic(descriptorPath(dir, id), meta); err != nil {
		return "", fmt.Errorf("artifact: write descriptor %s: %w", id, err)
	}

	observability.RecordArtifactWrite(len(content), false)
	return id, nil
}

// Get returns the content bytes of an artifact.
func (s *Store) Get(id string) ([]byte, error) {
	desc, err := s.GetDescriptor(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.contentPath(desc))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("artifact: read %s: %w", id, err)
	}
	return data, nil
}

// GetDescriptor returns the sidecar metadata of an artifact.
func (s *Store) GetDescriptor(id string) (*domain.ArtifactDescriptor, error) {
	if len(id) < 3 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	data, err := os.ReadFile(descriptorPath(filepath.Join(s.root, id[:2]), id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("artifact: read descriptor %s: %w", id, err)
	}
	var desc domain.ArtifactDescriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("artifact: decode descriptor %s: %w", id, err)
	}
	return &desc, nil
}

// List returns descriptors of the given kind, newest first. Empty kind
// matches everything. Deleted artifacts are excluded.
func (s *Store) List(kind domain.ArtifactKind) ([]*domain.ArtifactDescriptor, error) {
	var out []*domain.ArtifactDescriptor
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, metaSuffix) {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read descriptor %s: %w", path, err)
		}
		var desc domain.ArtifactDescriptor
		if err := json.Unmarshal(data, &desc); err != nil {
			return fmt.Errorf("decode descriptor %s: %w", path, err)
		}
		if desc.Status == domain.ArtifactDeleted {
			return nil
		}
		if kind != "" && desc.Kind != kind {
			return nil
		}
		out = append(out, &desc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("artifact: list: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ArtifactID < out[j].ArtifactID
	})
	return out, nil
}

// MarkSuperseded flips an artifact's status. The content stays on disk
// so old manifests remain replayable.
func (s *Store) MarkSuperseded(id string) error {
	return s.setStatus(id, domain.ArtifactSuperseded)
}

// MarkDeleted tombstones an artifact in listings.
func (s *Store) MarkDeleted(id string) error {
	return s.setStatus(id, domain.ArtifactDeleted)
}

func (s *Store) setStatus(id string, status domain.ArtifactStatus) error {
	desc, err := s.GetDescriptor(id)
	if err != nil {
		return err
	}
	desc.Status = status
	meta, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("artifact: encode descriptor: %w", err)
	}
	if err := writeAtomic(descriptorPath(filepath.Join(s.root, id[:2]), id), meta); err != nil {
		return fmt.Errorf("artifact: update descriptor %s: %w", id, err)
	}
	return nil
}

// Ancestors walks the lineage graph breadth-first and returns every
// transitive parent id, nearest first, each id once.
func (s *Store) Ancestors(id string) ([]string, error) {
	seen := map[string]bool{id: true}
	queue := []string{id}
	var out []string

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		desc, err := s.GetDescriptor(cur)
		if err != nil {
			return nil, err
		}
		for _, parent := range desc.Lineage {
			if seen[parent] {
				continue
			}
			seen[parent] = true
			out = append(out, parent)
			queue = append(queue, parent)
		}
	}
	return out, nil
}

const metaSuffix = ".meta.json"

func descriptorPath(dir, id string) string {
	return filepath.Join(dir, id+metaSuffix)
}

func (s *Store) contentPath(desc *domain.ArtifactDescriptor) string {
	return filepath.Join(s.root, desc.ArtifactID[:2], desc.ArtifactID+extension(desc.Kind))
}

func extension(kind domain.ArtifactKind) string {
	if kind == domain.ArtifactEvents {
		return ".ndjson"
	}
	return ".json"
}

// writeAtomic lands content via temp file + rename so a partially
// written artifact is never observable under its final name.
func writeAtomic(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
