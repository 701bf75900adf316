package ingestion_engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"code.sajari.com/docconv"
	"github.com/PuerkitoBio/goquery"

	"github.com/markdave123-py/crawlvec/internal/core"
)

var _ core.TextExtractor = (*HTMLExtractor)(nil)

// chromeSelectors covers page chrome that never carries page content.
var chromeSelectors = []string{
	"script", "style", "nav", "header", "footer", "aside",
	"noscript", "iframe", "form",
	".menu", ".gnb", ".lnb", "#skip_nav",
}

// HTMLExtractor implements core.TextExtractor with goquery and docconv.
type HTMLExtractor struct {
	useReadability bool
	log            *slog.Logger
}

func NewHTMLExtractor(useReadability bool) *HTMLExtractor {
	return &HTMLExtractor{
		useReadability: useReadability,
		log:            slog.Default().With("component", "html_extractor"),
	}
}

// ExtractText strips chrome elements with goquery and renders the rest with
// docconv. If docconv yields nothing the goquery text of <body> is used.
func (e *HTMLExtractor) ExtractText(ctx context.Context, html string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find(strings.Join(chromeSelectors, ", ")).Remove()

	stripped, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}

	text, _, err := docconv.ConvertHTML(strings.NewReader(stripped), e.useReadability)
	if err != nil {
		e.log.Debug("docconv: conversion failed, using dom text", "error", err)
		text = ""
	}
	if strings.TrimSpace(text) == "" {
		text = doc.Find("body").Text()
	}

	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n"), nil
}

// LooksLikeHTML reports whether a crawl body is raw markup rather than text.
func LooksLikeHTML(body string) bool {
	head := body
	if len(head) > 1024 {
		head = head[:1024]
	}
	head = strings.ToLower(head)
	for _, marker := range []string{"<!doctype html", "<html", "<body", "<div", "<p>", "<table"} {
		if strings.Contains(head, marker) {
			return true
		}
	}
	return false
}
