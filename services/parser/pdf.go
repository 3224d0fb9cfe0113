package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// PdfParser extracts text page by page. A page that fails extraction is
// dropped so one bad page does not sink the whole document.
type PdfParser struct{}

func (p *PdfParser) Types() []models.SupportedFileType {
	return []models.SupportedFileType{
		{Extension: "pdf", MimeType: "application/pdf"},
	}
}

func (p *PdfParser) Parse(_ context.Context, fileName string, content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF %s: %w", fileName, err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}
