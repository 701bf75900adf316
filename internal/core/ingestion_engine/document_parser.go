package ingestion_engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/markdave123-py/crawlvec/internal/models"
)

var (
	ErrNoHeaderTerminator = errors.New("header block is not terminated by a blank line")
	ErrMissingURL         = errors.New("header has no URL")
	ErrInvalidURL         = errors.New("header URL is not absolute")
	ErrBinaryBody         = errors.New("body is binary")
)

// ParseError reports a crawl file that could not be turned into a record.
type ParseError struct {
	File   string
	Reason error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.File, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Reason }

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ReadRecord reads a whole crawl file from r and parses it.
func ReadRecord(r io.Reader, collection, sourceFile string) (*models.RawCrawlRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sourceFile, err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	return ParseRecord(string(data), collection, sourceFile)
}

// ParseRecord splits a crawl file into its "[KEY] value" header and body.
// The header ends at the first blank line.
func ParseRecord(raw, collection, sourceFile string) (*models.RawCrawlRecord, error) {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")

	lines := strings.Split(raw, "\n")
	headers := make(map[string]string)
	bodyStart := -1

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			bodyStart = i + 1
			break
		}
		key, value, ok := splitHeaderLine(trimmed)
		if !ok {
			// a non-header line before any blank line means the file has no header block
			return nil, &ParseError{File: sourceFile, Reason: ErrNoHeaderTerminator}
		}
		headers[key] = value
	}
	if bodyStart < 0 {
		return nil, &ParseError{File: sourceFile, Reason: ErrNoHeaderTerminator}
	}

	rawURL := headers["URL"]
	if rawURL == "" {
		return nil, &ParseError{File: sourceFile, Reason: ErrMissingURL}
	}
	if _, err := NormalizeURL(rawURL); err != nil {
		return nil, &ParseError{File: sourceFile, Reason: ErrInvalidURL}
	}

	body := strings.TrimSpace(strings.Join(lines[bodyStart:], "\n"))
	if looksBinary(body) {
		return nil, &ParseError{File: sourceFile, Reason: ErrBinaryBody}
	}

	rec := &models.RawCrawlRecord{
		URL:              rawURL,
		Domain:           headers["DOMAIN"],
		SourceCollection: collection,
		SourceFile:       sourceFile,
		RawBody:          body,
	}
	if rec.Domain == "" {
		rec.Domain = hostOf(rawURL)
	}
	if d, err := strconv.Atoi(headers["DEPTH"]); err == nil {
		rec.Depth = d
	}
	if n, err := strconv.Atoi(headers["LENGTH"]); err == nil {
		rec.DeclaredLength = n
	} else {
		rec.DeclaredLength = utf8.RuneCountInString(body)
	}
	rec.Timestamp = parseTimestamp(headers["TIMESTAMP"])

	for k, v := range headers {
		switch k {
		case "URL", "DOMAIN", "DEPTH", "LENGTH", "TIMESTAMP":
		default:
			if rec.Extra == nil {
				rec.Extra = make(map[string]string)
			}
			rec.Extra[strings.ToLower(k)] = v
		}
	}
	return rec, nil
}

func splitHeaderLine(line string) (key, value string, ok bool) {
	if !strings.HasPrefix(line, "[") {
		return "", "", false
	}
	end := strings.Index(line, "]")
	if end <= 1 {
		return "", "", false
	}
	key = strings.ToUpper(strings.TrimSpace(line[1:end]))
	for _, r := range key {
		if !(r == '_' || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return "", "", false
		}
	}
	return key, strings.TrimSpace(line[end+1:]), true
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

var binarySignatures = [][]byte{
	[]byte("\x89PNG"),
	[]byte("\xff\xd8\xff"),
	[]byte("GIF87a"),
	[]byte("GIF89a"),
	[]byte("%PDF-"),
}

func looksBinary(body string) bool {
	head := []byte(body)
	if len(head) > 512 {
		head = head[:512]
	}
	for _, sig := range binarySignatures {
		if bytes.HasPrefix(head, sig) {
			return true
		}
	}
	if len(head) == 0 {
		return false
	}
	control := 0
	for _, b := range head {
		if b < 0x20 && b != '\n' && b != '\r' && b != '\t' {
			control++
		}
	}
	return float64(control)/float64(len(head)) > 0.2
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// NormalizeURL returns the form used as the dedup key: lower-case scheme
// and host, no default port, no fragment, sorted query, no trailing slash
// except on the root path.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("normalize url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("normalize url %q: not absolute", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}

	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			vals := q[k]
			sort.Strings(vals)
			for _, v := range vals {
				parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
		u.RawQuery = strings.Join(parts, "&")
	}
	u.ForceQuery = false

	if u.Path == "" {
		u.Path = "/"
	}
	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		if u.Path == "" {
			u.Path = "/"
		}
	}
	u.RawPath = ""

	return u.String(), nil
}
