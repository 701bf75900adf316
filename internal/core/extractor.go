package core

import "context"

// TextExtractor renders an HTML crawl body into plain text with page chrome removed.
type TextExtractor interface {
	ExtractText(ctx context.Context, html string) (string, error)
}
