package ingestion_engine

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/markdave123-py/crawlvec/internal/core"
)

// RejectReason names why a body was dropped. Empty means accepted.
type RejectReason string

const (
	ReasonNone                RejectReason = ""
	ReasonTooShort            RejectReason = "too_short"
	ReasonNoMeaningfulContent RejectReason = "no_meaningful_content"
	ReasonTooRepetitive       RejectReason = "too_repetitive"
	ReasonExtractFailed       RejectReason = "extract_failed"
)

// DefaultKeywords is the institutional vocabulary a page must mention to be
// considered meaningful.
var DefaultKeywords = []string{
	"대학교", "학과", "전공", "교수", "학생", "교육", "연구", "프로그램",
	"입학", "졸업", "수강", "강의", "시간표", "공지", "일정", "센터",
	"도서관", "기숙사", "장학", "취업", "국제", "교류", "안내", "소개",
	"모집", "신청", "등록", "대학원", "학부", "과정", "학회", "행사",
	"학술", "세미나", "특강", "워크샵", "컨퍼런스", "발표", "논문",
	"캠퍼스", "건물", "시설", "실습", "인턴십", "진로", "상담",
	"university", "department", "major", "professor", "student", "education",
	"research", "program", "admission", "graduation", "course", "lecture",
	"schedule", "notice", "center", "library", "dormitory", "scholarship",
	"career", "international", "exchange", "graduate", "undergraduate",
	"seminar", "campus", "internship",
}

// DefaultLinePatterns match whole lines of crawler residue.
var DefaultLinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^/WEB-INF/jsp/.*$`),
	regexp.MustCompile(`^[a-zA-Z0-9_]+_JW_MS_K2WT\d+_[MN]$`),
}

// uiWords are navigation labels; a line made only of these is dropped.
var uiWords = regexp.MustCompile(`(?i)메뉴|네비게이션|바로가기|이전|다음|\bTOP\b|닫기|더보기|목록|검색|\bLogin\b|\bLanguage\b|\bKOR\b|\bENG\b|\bCHN\b|\bPopup\b|상단팝업|팝업건수|오늘하루|슬라이드|Copyright|All Rights Reserved|ⓒ|©`)

var uiSeparators = regexp.MustCompile(`[\s|/·>»<«\-_,.:;()\[\]{}0-9]+`)

type FilterConfig struct {
	MinContentLength    int
	MinKeywordHits      int
	RepetitionThreshold float64
	Keywords            []string
	LinePatterns        []*regexp.Regexp
	// Extractor renders HTML bodies to text first; nil leaves them as is.
	Extractor core.TextExtractor
}

type FilterResult struct {
	Text   string
	Reason RejectReason
}

// Accepted reports whether the body passed every check.
func (r FilterResult) Accepted() bool { return r.Reason == ReasonNone }

// QualityFilter cleans crawl bodies and rejects low-value pages.
type QualityFilter struct {
	cfg      FilterConfig
	keywords []string
}

func NewQualityFilter(cfg FilterConfig) *QualityFilter {
	if cfg.Keywords == nil {
		cfg.Keywords = DefaultKeywords
	}
	if cfg.LinePatterns == nil {
		cfg.LinePatterns = DefaultLinePatterns
	}
	kw := make([]string, len(cfg.Keywords))
	for i, k := range cfg.Keywords {
		kw[i] = strings.ToLower(k)
	}
	return &QualityFilter{cfg: cfg, keywords: kw}
}

// Filter cleans body and applies, in order, the length, vocabulary and
// repetition checks. Lengths are counted in runes.
func (f *QualityFilter) Filter(ctx context.Context, body string) FilterResult {
	if f.cfg.Extractor != nil && LooksLikeHTML(body) {
		text, err := f.cfg.Extractor.ExtractText(ctx, body)
		if err != nil {
			return FilterResult{Reason: ReasonExtractFailed}
		}
		body = text
	}

	cleaned := f.Clean(body)

	if utf8.RuneCountInString(cleaned) < f.cfg.MinContentLength {
		return FilterResult{Text: cleaned, Reason: ReasonTooShort}
	}
	if f.keywordHits(cleaned) < f.cfg.MinKeywordHits {
		return FilterResult{Text: cleaned, Reason: ReasonNoMeaningfulContent}
	}
	if f.cfg.RepetitionThreshold > 0 && uniqueLineRatio(cleaned) < f.cfg.RepetitionThreshold {
		return FilterResult{Text: cleaned, Reason: ReasonTooRepetitive}
	}
	return FilterResult{Text: cleaned}
}

// Clean removes residue lines and navigation-only lines, drops blank lines
// and collapses runs of newlines. It is deterministic.
func (f *QualityFilter) Clean(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	lines := strings.Split(body, "\n")
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if f.matchesResidue(line) {
			continue
		}
		if isNavigationOnly(line) {
			continue
		}
		kept = append(kept, line)
	}

	return strings.Join(kept, "\n")
}

func (f *QualityFilter) matchesResidue(line string) bool {
	for _, re := range f.cfg.LinePatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func isNavigationOnly(line string) bool {
	if !uiWords.MatchString(line) {
		return false
	}
	rest := uiWords.ReplaceAllString(line, "")
	rest = uiSeparators.ReplaceAllString(rest, "")
	return rest == ""
}

func (f *QualityFilter) keywordHits(text string) int {
	lower := strings.ToLower(text)
	hits := 0
	for _, k := range f.keywords {
		if strings.Contains(lower, k) {
			hits++
		}
	}
	return hits
}

func uniqueLineRatio(text string) float64 {
	seen := make(map[string]struct{})
	total := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		total++
		seen[line] = struct{}{}
	}
	if total == 0 {
		return 0
	}
	return float64(len(seen)) / float64(total)
}

// RejectionTally counts rejected bodies per reason.
type RejectionTally map[RejectReason]int

func (t RejectionTally) Add(r RejectReason) {
	if r != ReasonNone {
		t[r]++
	}
}

func (t RejectionTally) Total() int {
	n := 0
	for _, c := range t {
		n += c
	}
	return n
}

// AsMap converts the tally for JSON output.
func (t RejectionTally) AsMap() map[string]int {
	out := make(map[string]int, len(t))
	for k, v := range t {
		out[string(k)] = v
	}
	return out
}
