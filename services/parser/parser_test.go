package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// minimalPdf assembles a one-page PDF with a single text run, computing
// the cross-reference offsets as it writes.
func minimalPdf(text string) []byte {
	stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)

	var buf bytes.Buffer
	offsets := make([]int, 6)
	buf.WriteString("%PDF-1.4\n")
	obj := func(n int, body string) {
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, body)
	}
	obj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	obj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	obj(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>")
	obj(4, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	obj(5, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	xref := buf.Len()
	buf.WriteString("xref\n0 6\n0000000000 65535 f \n")
	for n := 1; n <= 5; n++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[n])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size 6 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref)
	return buf.Bytes()
}

func TestRegistry_SupportedTypes(t *testing.T) {
	types := NewRegistry().SupportedTypes()

	require.Len(t, types, 8)
	assert.Equal(t, "csv", types[0].Extension)

	byExt := make(map[string]string)
	for _, ft := range types {
		byExt[ft.Extension] = ft.MimeType
	}
	assert.Equal(t, "application/pdf", byExt["pdf"])
	assert.Equal(t, "text/plain", byExt["txt"])
	assert.Contains(t, byExt["xlsx"], "spreadsheetml")
}

func TestRegistry_Supports(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Supports("Report.PDF"))
	assert.True(t, r.Supports("notes.txt"))
	assert.True(t, r.Supports("data/2024/figures.xlsx"))
	assert.False(t, r.Supports("deck.pptx"))
	assert.False(t, r.Supports("README"))
}

func TestRegistry_Parse_UnsupportedExtension(t *testing.T) {
	_, err := NewRegistry().Parse(context.Background(), "deck.pptx", []byte("x"))

	var skip *models.DocumentSkippedError
	require.ErrorAs(t, err, &skip)
	assert.Equal(t, "deck.pptx", skip.FileName)
	assert.Contains(t, skip.Reason, "unsupported")
}

func TestRegistry_Parse_EmptyContent(t *testing.T) {
	_, err := NewRegistry().Parse(context.Background(), "notes.txt", []byte("  \n\t "))

	var skip *models.DocumentSkippedError
	require.ErrorAs(t, err, &skip)
	assert.Contains(t, skip.Reason, "no extractable text")
}

func TestTextParser_NormalizesContent(t *testing.T) {
	content := append(append([]byte{}, utf8Bom...), []byte("first\r\nsecond\r\n")...)

	text, err := NewRegistry().Parse(context.Background(), "notes.txt", content)

	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", text)
}

func TestExcelParser_RendersSheets(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Name"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Amount"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Acme"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 41.5))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	text, err := NewRegistry().Parse(context.Background(), "report.xlsx", buf.Bytes())

	require.NoError(t, err)
	assert.Contains(t, text, "Sheet: Sheet1")
	assert.Contains(t, text, "Name | Amount")
	assert.Contains(t, text, "Acme | 41.5")
}

func TestPdfParser_ExtractsText(t *testing.T) {
	text, err := NewRegistry().Parse(context.Background(), "hello.pdf", minimalPdf("Hello world"))

	require.NoError(t, err)
	assert.Contains(t, text, "Hello world")
}

func TestPdfParser_CorruptFileIsRetryable(t *testing.T) {
	_, err := NewRegistry().Parse(context.Background(), "broken.pdf", []byte("not a pdf at all"))

	require.Error(t, err)
	var skip *models.DocumentSkippedError
	assert.False(t, errors.As(err, &skip), "corrupt files should surface as errors, not skips")
}
