package ingestion_engine

import (
	"sort"

	"github.com/markdave123-py/crawlvec/internal/models"
)

// Deduplicator keeps one canonical entry per normalized URL across collections.
type Deduplicator struct {
	entries map[string]*models.CanonicalEntry

	Seen       int
	Replaced   int
	Duplicates int
	Invalid    int
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{entries: make(map[string]*models.CanonicalEntry)}
}

// Offer considers rec (with its cleaned body) for its URL. It returns true
// when rec becomes the canonical entry. Records whose URL cannot be
// normalized are counted as Invalid and rejected.
func (d *Deduplicator) Offer(rec *models.RawCrawlRecord, priority int, body string) bool {
	d.Seen++

	key, err := NormalizeURL(rec.URL)
	if err != nil {
		d.Invalid++
		return false
	}

	cand := &models.CanonicalEntry{
		URL:              key,
		Domain:           rec.Domain,
		Depth:            rec.Depth,
		SourceCollection: rec.SourceCollection,
		Priority:         priority,
		Timestamp:        rec.Timestamp,
		DeclaredLength:   rec.DeclaredLength,
		SourceFile:       rec.SourceFile,
		Extra:            rec.Extra,
		Body:             body,
	}

	cur, ok := d.entries[key]
	if !ok {
		d.entries[key] = cand
		return true
	}

	d.Duplicates++
	if better(cand, cur) {
		d.entries[key] = cand
		d.Replaced++
		return true
	}
	return false
}

// better orders entries by lower priority, newer timestamp, larger declared
// length, then smaller source file and collection name.
func better(a, b *models.CanonicalEntry) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	if a.DeclaredLength != b.DeclaredLength {
		return a.DeclaredLength > b.DeclaredLength
	}
	if a.SourceFile != b.SourceFile {
		return a.SourceFile < b.SourceFile
	}
	return a.SourceCollection < b.SourceCollection
}

// Len returns the number of canonical entries.
func (d *Deduplicator) Len() int { return len(d.entries) }

// Entries returns the canonical list sorted by normalized URL. Its order
// defines file batches.
func (d *Deduplicator) Entries() []models.CanonicalEntry {
	out := make([]models.CanonicalEntry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Domains returns the distinct domains of the canonical set, sorted.
func (d *Deduplicator) Domains() []string {
	set := make(map[string]struct{})
	for _, e := range d.entries {
		if e.Domain != "" {
			set[e.Domain] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
