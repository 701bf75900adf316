package ingestion_engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/markdave123-py/crawlvec/internal/models"
)

const manifestVersion = 1

// Manifest is the canonical file list of a run, without bodies. Its order
// defines the file batches.
type Manifest struct {
	Version       int                     `json:"version"`
	FilesPerBatch int                     `json:"files_per_batch"`
	Entries       []models.CanonicalEntry `json:"entries"`
}

func NewManifest(entries []models.CanonicalEntry, filesPerBatch int) *Manifest {
	return &Manifest{Version: manifestVersion, FilesPerBatch: filesPerBatch, Entries: entries}
}

// ManifestPath derives the manifest location from the checkpoint path.
func ManifestPath(checkpointPath string) string {
	return strings.TrimSuffix(checkpointPath, ".json") + ".manifest.json"
}

// TotalBatches is ceil(len(entries) / FilesPerBatch).
func (m *Manifest) TotalBatches() int {
	if m.FilesPerBatch <= 0 || len(m.Entries) == 0 {
		return 0
	}
	return (len(m.Entries) + m.FilesPerBatch - 1) / m.FilesPerBatch
}

// Batch returns the entries of file batch i.
func (m *Manifest) Batch(i int) []models.CanonicalEntry {
	start := i * m.FilesPerBatch
	if i < 0 || start >= len(m.Entries) {
		return nil
	}
	end := start + m.FilesPerBatch
	if end > len(m.Entries) {
		end = len(m.Entries)
	}
	return m.Entries[start:end]
}

// Hash identifies the file list and batch size.
func (m *Manifest) Hash() string {
	h := sha256.New()
	fmt.Fprintf(h, "v%d/%d\n", m.Version, m.FilesPerBatch)
	for _, e := range m.Entries {
		fmt.Fprintf(h, "%s\t%s\t%s\t%d\n", e.URL, e.SourceCollection, e.SourceFile, e.Priority)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (m *Manifest) Save(path string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: encode manifest: %v", ErrCheckpointWrite, err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("%w: manifest: %v", ErrCheckpointWrite, err)
	}
	return nil
}

// LoadManifest reads a manifest; a missing file yields (nil, nil).
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("manifest version %d not supported", m.Version)
	}
	return &m, nil
}
