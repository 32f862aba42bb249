package curriculum

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Builtin returns the curriculum documents shipped with the binary.
func Builtin() fs.FS {
	sub, err := fs.Sub(builtinFS, "builtin")
	if err != nil {
		panic(fmt.Sprintf("curriculum: builtin content: %v", err))
	}
	return sub
}

// FileStore serves content decoded from YAML documents in a file system.
// It is read-only after construction and safe for concurrent use.
type FileStore struct {
	byKey map[TopicKey]*Content
}

// NewFileStore walks fsys for *.yaml / *.yml files, decodes and validates
// each document, and indexes them by topic key. When two documents share a
// path the one with the higher version wins.
func NewFileStore(fsys fs.FS) (*FileStore, error) {
	s := &FileStore{byKey: make(map[TopicKey]*Content)}

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(path.Ext(p))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		raw, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		c, err := DecodeContent(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		s.add(c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load curriculum: %w", err)
	}

	return s, nil
}

// DecodeContent parses and validates a single YAML content document.
func DecodeContent(raw []byte) (*Content, error) {
	var c Content
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	if err := Validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *FileStore) add(c *Content) {
	key := c.Key()
	if existing, ok := s.byKey[key]; ok && semver.Compare(existing.Version, c.Version) >= 0 {
		return
	}
	s.byKey[key] = c
}

// Content implements ContentStore.
func (s *FileStore) Content(_ context.Context, p Path) (*Content, error) {
	c, ok := s.byKey[PathToKey(p)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContentNotFound, p)
	}
	return c.clone(), nil
}

// List implements Lister. Results are sorted by topic key.
func (s *FileStore) List(_ context.Context) ([]*Content, error) {
	out := make([]*Content, 0, len(s.byKey))
	for _, c := range s.byKey {
		out = append(out, c.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key() < out[j].Key()
	})
	return out, nil
}

// Len returns the number of subtopics loaded.
func (s *FileStore) Len() int {
	return len(s.byKey)
}
