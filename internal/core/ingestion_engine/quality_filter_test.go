package ingestion_engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultFilter() *QualityFilter {
	return NewQualityFilter(FilterConfig{MinContentLength: 150, MinKeywordHits: 2, RepetitionThreshold: 0.5})
}

func TestQualityFilter_TooShortWithKeywords(t *testing.T) {
	body := "대학교 학과 교수 소개 페이지입니다. 자세한 내용은 추후 공개됩니다. 감사합니다!!"
	require.Less(t, len([]rune(body)), 150)

	res := defaultFilter().Filter(context.Background(), body)
	assert.Equal(t, ReasonTooShort, res.Reason)
	assert.False(t, res.Accepted())
}

func TestQualityFilter_NoMeaningfulContent(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString("오늘의 날씨는 맑고 바람이 약간 불겠습니다 지역별 기온 차이가 있습니다 ")
		b.WriteString(string(rune('A' + i)))
		b.WriteString("\n")
	}
	res := defaultFilter().Filter(context.Background(), b.String())
	assert.Equal(t, ReasonNoMeaningfulContent, res.Reason)
}

func TestQualityFilter_TooRepetitive(t *testing.T) {
	line := "학과 공지사항과 학생 교육 프로그램 안내 문구가 반복되는 페이지입니다"
	body := strings.Repeat(line+"\n", 8) + "다른 한 줄"
	res := defaultFilter().Filter(context.Background(), body)
	assert.Equal(t, ReasonTooRepetitive, res.Reason)
}

func TestQualityFilter_Accepts(t *testing.T) {
	res := defaultFilter().Filter(context.Background(), pageBody("컴퓨터공학", 8))
	require.True(t, res.Accepted(), "reason: %s", res.Reason)
	assert.Contains(t, res.Text, "컴퓨터공학 학과 안내 0번 항목")
}

func TestQualityFilter_Clean(t *testing.T) {
	body := strings.Join([]string{
		"/WEB-INF/jsp/board/list.jsp",
		"main_JW_MS_K2WT001_M",
		"메뉴 | 바로가기",
		"TOP",
		"   ",
		"학과 소개",
		"",
		"",
		"",
		"다음 학기 수강 신청 안내",
		"Copyright ⓒ 2025 All Rights Reserved",
	}, "\n")

	got := defaultFilter().Clean(body)
	assert.Equal(t, "학과 소개\n다음 학기 수강 신청 안내", got)
}

func TestQualityFilter_CleanIsDeterministic(t *testing.T) {
	f := defaultFilter()
	body := pageBody("경영", 5) + "\n\n\n\n메뉴\n"
	assert.Equal(t, f.Clean(body), f.Clean(body))
	assert.Equal(t, f.Clean(body), f.Clean(f.Clean(body)))
}

func TestQualityFilter_HTMLBody(t *testing.T) {
	f := NewQualityFilter(FilterConfig{
		MinContentLength: 20, MinKeywordHits: 1, RepetitionThreshold: 0.5,
		Extractor: NewHTMLExtractor(false),
	})
	html := `<html><body><nav>메뉴 전체보기 링크 모음</nav>
<div class="content"><p>도서관 이용 안내와 열람실 운영 시간을 알려드립니다.</p></div>
<script>var x = "학과";</script></body></html>`

	res := f.Filter(context.Background(), html)
	require.True(t, res.Accepted(), "reason: %s", res.Reason)
	assert.Contains(t, res.Text, "도서관 이용 안내")
	assert.NotContains(t, res.Text, "var x")
	assert.NotContains(t, res.Text, "전체보기")
}

func TestRejectionTally(t *testing.T) {
	tally := make(RejectionTally)
	tally.Add(ReasonTooShort)
	tally.Add(ReasonTooShort)
	tally.Add(ReasonNone)
	tally.Add(ReasonTooRepetitive)

	assert.Equal(t, 3, tally.Total())
	assert.Equal(t, map[string]int{"too_short": 2, "too_repetitive": 1}, tally.AsMap())
}
