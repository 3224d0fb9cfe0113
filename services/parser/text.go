package parser

import (
	"bytes"
	"context"
	"strings"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

var utf8Bom = []byte{0xEF, 0xBB, 0xBF}

// TextParser covers formats that are already plain text. Line endings are
// normalized so chunk offsets are stable across platforms.
type TextParser struct{}

func (p *TextParser) Types() []models.SupportedFileType {
	return []models.SupportedFileType{
		{Extension: "txt", MimeType: "text/plain"},
		{Extension: "md", MimeType: "text/markdown"},
		{Extension: "csv", MimeType: "text/csv"},
		{Extension: "json", MimeType: "application/json"},
		{Extension: "log", MimeType: "text/plain"},
	}
}

func (p *TextParser) Parse(_ context.Context, _ string, content []byte) (string, error) {
	content = bytes.TrimPrefix(content, utf8Bom)
	return strings.ReplaceAll(string(content), "\r\n", "\n"), nil
}
