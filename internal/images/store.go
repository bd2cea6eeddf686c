package images

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Store is the content-addressed local image registry rooted at
// <data_home>/bento/images/.
type Store struct {
	mu       sync.Mutex
	root     string
	registry *registryFile
}

// Open creates the image root if missing, loads registry.json if
// present, and writes an empty one atomically if absent. A version
// mismatch on an existing registry.json is a fatal error.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create images root: %w", err)
	}

	s := &Store{root: root}
	regPath := filepath.Join(root, "registry.json")

	raw, err := os.ReadFile(regPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %w", ErrRegistryLoadFailed, err)
		}
		s.registry = newRegistryFile()
		if err := s.save(); err != nil {
			return nil, err
		}
		return s, nil
	}

	var reg registryFile
	if err := json.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistryLoadFailed, err)
	}
	if reg.Version != RegistryVersion {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrRegistryVersionMismatch, reg.Version, RegistryVersion)
	}
	if reg.Images == nil {
		reg.Images = make(map[string]ImageRecord)
	}
	if reg.Tags == nil {
		reg.Tags = make(map[string]string)
	}
	s.registry = &reg
	return s, nil
}

// Root returns the image store's root directory.
func (s *Store) Root() string { return s.root }

// ImageDir returns the on-disk directory for an image id.
func (s *Store) ImageDir(id string) string {
	return filepath.Join(s.root, id)
}

// save writes registry.json atomically: a sibling temp file carrying a
// nanosecond timestamp in its name, then renamed over the target.
func (s *Store) save() error {
	buf, err := json.MarshalIndent(s.registry, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRegistrySaveFailed, err)
	}

	regPath := filepath.Join(s.root, "registry.json")
	tmpPath := fmt.Sprintf("%s.%d.tmp", regPath, time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, buf, 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrRegistrySaveFailed, err)
	}
	if err := os.Rename(tmpPath, regPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %w", ErrRegistrySaveFailed, err)
	}
	return nil
}

// List returns one Image per tag, sorted by tag name.
func (s *Store) List() []Image {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Image, 0, len(s.registry.Tags))
	for tag, id := range s.registry.Tags {
		if rec, ok := s.registry.Images[id]; ok {
			out = append(out, Image{Tag: tag, ImageRecord: rec})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// Resolve looks up nameOrRef first as a tag, then by source_ref
// equality across all images. Returns (Image{}, false) if neither matches.
func (s *Store) Resolve(nameOrRef string) (Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.registry.Tags[nameOrRef]; ok {
		if rec, ok := s.registry.Images[id]; ok {
			return Image{Tag: nameOrRef, ImageRecord: rec}, true
		}
	}

	for tag, id := range s.registry.Tags {
		rec, ok := s.registry.Images[id]
		if ok && rec.SourceRef == nameOrRef {
			return Image{Tag: tag, ImageRecord: rec}, true
		}
	}
	return Image{}, false
}

// upsert writes or replaces an image record and its tag mapping,
// persisting the registry atomically.
func (s *Store) upsert(rec ImageRecord, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.registry.Images[rec.ID]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	s.registry.Images[rec.ID] = rec
	s.registry.Tags[tag] = rec.ID
	return s.save()
}

// RemoveImage drops tag; if no other tag still references the
// underlying image, the image directory and record are removed too.
func (s *Store) RemoveImage(tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.registry.Tags[tag]
	if !ok {
		return ErrTagNotFound
	}
	delete(s.registry.Tags, tag)

	stillReferenced := false
	for _, otherID := range s.registry.Tags {
		if otherID == id {
			stillReferenced = true
			break
		}
	}

	if !stillReferenced {
		delete(s.registry.Images, id)
		if err := os.RemoveAll(s.ImageDir(id)); err != nil {
			return fmt.Errorf("remove image directory: %w", err)
		}
	}

	return s.save()
}
