package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrLowPassRate is returned when no collection reaches the minimum pass rate.
var ErrLowPassRate = errors.New("every collection is below the minimum pass rate")

// PrecheckResult is the sampled quality of one collection.
type PrecheckResult struct {
	Collection    string         `json:"collection"`
	Location      string         `json:"location"`
	TotalFiles    int            `json:"total_files"`
	Sampled       int            `json:"sampled"`
	Passed        int            `json:"passed"`
	ParseFailures int            `json:"parse_failures"`
	Rejected      map[string]int `json:"rejected"`
	PassRate      float64        `json:"pass_rate"` // percent of sampled files
}

// Precheck parses and filters an evenly spaced sample of the collection
// without embedding anything.
func Precheck(ctx context.Context, col Collection, filter *QualityFilter, sampleSize int) (PrecheckResult, error) {
	res := PrecheckResult{Collection: col.Name, Location: col.Source.Location()}

	names, err := col.Source.List(ctx)
	if err != nil {
		return res, fmt.Errorf("collection %s: %w", col.Name, err)
	}
	res.TotalFiles = len(names)

	tally := make(RejectionTally)
	for _, idx := range sampleIndices(len(names), sampleSize) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Sampled++

		rc, err := col.Source.Open(ctx, names[idx])
		if err != nil {
			res.ParseFailures++
			continue
		}
		rec, err := readAndClose(rc, col.Name, names[idx])
		if err != nil {
			res.ParseFailures++
			continue
		}
		fr := filter.Filter(ctx, rec)
		if !fr.Accepted() {
			tally.Add(fr.Reason)
			continue
		}
		res.Passed++
	}

	res.Rejected = tally.AsMap()
	if res.Sampled > 0 {
		res.PassRate = float64(res.Passed) * 100 / float64(res.Sampled)
	}
	return res, nil
}

func readAndClose(rc io.ReadCloser, collection, name string) (string, error) {
	defer rc.Close()
	rec, err := ReadRecord(rc, collection, name)
	if err != nil {
		return "", err
	}
	return rec.RawBody, nil
}

// sampleIndices picks n indices spread evenly over [0, total). n <= 0 or
// n >= total selects everything.
func sampleIndices(total, n int) []int {
	if n <= 0 || n >= total {
		n = total
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = i * total / n
	}
	return out
}

// CheckPassRates returns ErrLowPassRate when every result is below minRate
// percent. Collections with no files are ignored.
func CheckPassRates(results []PrecheckResult, minRate float64) error {
	considered := 0
	for _, r := range results {
		if r.Sampled == 0 {
			continue
		}
		considered++
		if r.PassRate >= minRate {
			return nil
		}
	}
	if considered == 0 {
		return nil
	}
	return fmt.Errorf("%w (%.1f%%)", ErrLowPassRate, minRate)
}
