package server

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// previewLength caps how much text a preview carries back to the canvas.
const previewLength = 1000

// Processor computes a preview for one node kind from the node's config.
// Fetching and parsing the underlying source is a separate ingestion
// concern; processors here work off the content the client already holds.
type Processor interface {
	Preview(ctx context.Context, config map[string]any) (text string, meta map[string]string, err error)
}

// defaultProcessors maps node types to their processors, mirroring the node
// kinds the canvas offers.
func defaultProcessors() map[string]Processor {
	docs := documentProcessor{}
	return map[string]Processor{
		"url":        urlProcessor{},
		"notion":     pageProcessor{source: "notion"},
		"confluence": pageProcessor{source: "confluence"},
		"pdf":        docs,
		"docx":       docs,
		"txt":        docs,
		"processor":  documentProcessor{},
	}
}

type urlProcessor struct{}

func (urlProcessor) Preview(ctx context.Context, config map[string]any) (string, map[string]string, error) {
	rawURL, _ := config["url"].(string)
	if rawURL == "" {
		return "", nil, fmt.Errorf("url node has no url configured")
	}
	content, _ := config["content"].(string)
	if content == "" {
		return "", nil, fmt.Errorf("no content available for %s", rawURL)
	}
	return truncate(content, previewLength), map[string]string{
		"source": "url",
		"url":    rawURL,
	}, nil
}

type pageProcessor struct {
	source string
}

func (p pageProcessor) Preview(ctx context.Context, config map[string]any) (string, map[string]string, error) {
	pageID, _ := config["pageId"].(string)
	if pageID == "" {
		return "", nil, fmt.Errorf("%s node has no page configured", p.source)
	}
	content, _ := config["content"].(string)
	if content == "" {
		return "", nil, fmt.Errorf("no content available for %s page %s", p.source, pageID)
	}
	meta := map[string]string{
		"source":  p.source,
		"page_id": pageID,
	}
	if title, ok := config["title"].(string); ok && title != "" {
		meta["title"] = title
	}
	return truncate(content, previewLength), meta, nil
}

type documentProcessor struct{}

func (documentProcessor) Preview(ctx context.Context, config map[string]any) (string, map[string]string, error) {
	content, _ := config["content"].(string)
	if content == "" {
		return "", nil, fmt.Errorf("document node has no content")
	}
	meta := map[string]string{"source": "document"}
	if name, ok := config["filename"].(string); ok && name != "" {
		meta["filename"] = name
	}
	words := len(strings.Fields(content))
	meta["word_count"] = fmt.Sprintf("%d", words)
	return truncate(content, previewLength), meta, nil
}

// truncate cuts s at n runes without splitting a multi-byte character.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
