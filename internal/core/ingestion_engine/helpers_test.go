package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/crawlvec/internal/core/corpus"
	"github.com/markdave123-py/crawlvec/internal/core/retry"
	"github.com/markdave123-py/crawlvec/internal/models"
)

// pageBody builds a body that passes the default quality filter.
func pageBody(topic string, lines int) string {
	var b strings.Builder
	for i := 0; i < lines; i++ {
		fmt.Fprintf(&b, "%s 학과 안내 %d번 항목: 학생 교육 프로그램과 연구 활동을 소개합니다.\n", topic, i)
	}
	return b.String()
}

func crawlFile(url, timestamp, body string) string {
	return fmt.Sprintf("[URL] %s\n[DOMAIN] www.example.ac.kr\n[DEPTH] 1\n[LENGTH] %d\n[TIMESTAMP] %s\n\n%s",
		url, len([]rune(body)), timestamp, body)
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func dirCollection(name string, priority int, dir, prefix string) Collection {
	return Collection{Name: name, Priority: priority, Source: corpus.NewDirSource(dir, prefix)}
}

// fakeProvider returns a deterministic vector per text and can be scripted
// to fail.
type fakeProvider struct {
	mu       sync.Mutex
	dim      int
	calls    int
	failFor  func(call int, texts []string) error
	onCall   func(call int)
	requests [][]string
}

func (f *fakeProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.requests = append(f.requests, append([]string(nil), texts...))
	f.mu.Unlock()

	if f.onCall != nil {
		f.onCall(call)
	}
	if f.failFor != nil {
		if err := f.failFor(call, texts); err != nil {
			return nil, err
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dim)
		for j := range v {
			v[j] = float32(len(t) + j)
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type storedRow struct {
	SourceFile string
	Content    string
	Metadata   models.ChunkMetadata
}

// memStore is an in-memory DbClient with the same replace-per-batch
// semantics as the Postgres client.
type memStore struct {
	mu       sync.Mutex
	rows     map[string][]storedRow // "runID/batch" -> rows
	writes   int
	failNext int
	onDelete func() // runs after DeleteScope removed rows
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string][]storedRow)}
}

func (m *memStore) DeleteScope(ctx context.Context, scope models.Scope) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inScope := func(r storedRow) bool {
		for _, d := range scope.Domains {
			if r.Metadata.Domain == d {
				return true
			}
		}
		for _, c := range scope.Collections {
			if r.Metadata.Collection == c {
				return true
			}
		}
		return false
	}

	var n int64
	for k, rows := range m.rows {
		kept := rows[:0]
		for _, r := range rows {
			if inScope(r) {
				n++
				continue
			}
			kept = append(kept, r)
		}
		m.rows[k] = kept
	}
	if m.onDelete != nil {
		m.onDelete()
	}
	return n, nil
}

func (m *memStore) WriteBatch(ctx context.Context, runID string, batch int, docs []models.EmbeddedDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes++
	if m.failNext > 0 {
		m.failNext--
		return errors.New("connection reset")
	}
	rows := make([]storedRow, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, storedRow{SourceFile: d.Chunk.SourceFile, Content: d.Chunk.Content, Metadata: d.Chunk.Metadata})
	}
	m.rows[fmt.Sprintf("%s/%d", runID, batch)] = rows
	return nil
}

func (m *memStore) CountDocuments(ctx context.Context, sourceType string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, rows := range m.rows {
		n += int64(len(rows))
	}
	return n, nil
}

func (m *memStore) Close() error { return nil }

// contents returns every stored "source_file|content" sorted.
func (m *memStore) contents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, rows := range m.rows {
		for _, r := range rows {
			out = append(out, r.SourceFile+"|"+r.Content)
		}
	}
	sort.Strings(out)
	return out
}

func testIngestConfig(checkpoint string) IngestConfig {
	return IngestConfig{
		ChunkSize:      800,
		ChunkOverlap:   100,
		MinChunkLength: 50,
		EmbedBatchSize: 15,
		FilesPerBatch:  2,
		EmbedDim:       4,
		Retry:          retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Timeout: time.Second},
		Filter: FilterConfig{
			MinContentLength:    150,
			MinKeywordHits:      2,
			RepetitionThreshold: 0.5,
		},
		CheckpointPath: checkpoint,
	}
}
