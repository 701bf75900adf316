package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

var ErrDuplicatePriority = errors.New("collections: duplicate priority")

// Collection is one crawl run. Lower Priority wins when the same URL
// appears in more than one collection.
type Collection struct {
	Name     string `toml:"name" validate:"required"`
	Location string `toml:"location" validate:"required"`
	Prefix   string `toml:"prefix"`
	Priority int    `toml:"priority" validate:"gte=0"`
}

// IsRemote reports whether the collection lives in object storage.
func (c Collection) IsRemote() bool {
	return strings.HasPrefix(c.Location, "s3://")
}

type collectionsFile struct {
	Collections []Collection `toml:"collection" validate:"required,min=1,dive"`
}

// LoadCollections reads the collections file at path.
func LoadCollections(path string) ([]Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read collections file: %w", err)
	}
	return ParseCollections(data)
}

// ParseCollections decodes a TOML collections document. Missing priorities
// default to the 1-based position in the file. The result is sorted by
// priority.
func ParseCollections(data []byte) ([]Collection, error) {
	var f collectionsFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode collections: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("collections: %w", err)
	}

	seenPriority := make(map[int]string, len(f.Collections))
	seenName := make(map[string]struct{}, len(f.Collections))
	for i := range f.Collections {
		c := &f.Collections[i]
		if c.Priority == 0 {
			c.Priority = i + 1
		}
		if other, ok := seenPriority[c.Priority]; ok {
			return nil, fmt.Errorf("%w: %d used by %q and %q", ErrDuplicatePriority, c.Priority, other, c.Name)
		}
		if _, ok := seenName[c.Name]; ok {
			return nil, fmt.Errorf("collections: duplicate name %q", c.Name)
		}
		seenPriority[c.Priority] = c.Name
		seenName[c.Name] = struct{}{}
	}

	sort.Slice(f.Collections, func(i, j int) bool {
		return f.Collections[i].Priority < f.Collections[j].Priority
	})
	return f.Collections, nil
}
