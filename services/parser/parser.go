package parser

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// Parser extracts plain text from the raw bytes of one format family.
type Parser interface {
	Parse(ctx context.Context, fileName string, content []byte) (string, error)
	Types() []models.SupportedFileType
}

// Registry maps file extensions to parsers. It is assembled once at
// startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry registers the built-in parsers: PDF, workbooks, and the
// plain-text family.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	for _, p := range []Parser{&PdfParser{}, &ExcelParser{}, &TextParser{}} {
		for _, t := range p.Types() {
			r.parsers[t.Extension] = p
		}
	}
	return r
}

// Supports reports whether the file's extension has a registered parser.
func (r *Registry) Supports(fileName string) bool {
	_, ok := r.parsers[normalizeExt(fileName)]
	return ok
}

// SupportedTypes lists every registered extension with its MIME type,
// sorted by extension.
func (r *Registry) SupportedTypes() []models.SupportedFileType {
	seen := make(map[string]bool, len(r.parsers))
	out := make([]models.SupportedFileType, 0, len(r.parsers))
	for _, p := range r.parsers {
		for _, t := range p.Types() {
			if seen[t.Extension] {
				continue
			}
			seen[t.Extension] = true
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Extension < out[j].Extension })
	return out
}

// MimeType returns the MIME type registered for the file's extension, or
// an empty string when the extension is unknown.
func (r *Registry) MimeType(fileName string) string {
	ext := normalizeExt(fileName)
	p, ok := r.parsers[ext]
	if !ok {
		return ""
	}
	for _, t := range p.Types() {
		if t.Extension == ext {
			return t.MimeType
		}
	}
	return ""
}

// Parse extracts the text of one file. An extension without a parser and
// a file that yields no text are terminal skips, not failures; a corrupt
// file is an error so callers may retry it.
func (r *Registry) Parse(ctx context.Context, fileName string, content []byte) (string, error) {
	p, ok := r.parsers[normalizeExt(fileName)]
	if !ok {
		return "", &models.DocumentSkippedError{FileName: fileName, Reason: "unsupported file type"}
	}
	text, err := p.Parse(ctx, fileName, content)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", &models.DocumentSkippedError{FileName: fileName, Reason: "no extractable text"}
	}
	return text, nil
}

func normalizeExt(fileName string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
}
