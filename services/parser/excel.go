package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// ExcelParser renders every sheet as pipe-separated rows under a
// "Sheet: name" heading so tabular values stay searchable as text.
type ExcelParser struct{}

func (p *ExcelParser) Types() []models.SupportedFileType {
	return []models.SupportedFileType{
		{Extension: "xlsx", MimeType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		{Extension: "xls", MimeType: "application/vnd.ms-excel"},
	}
}

func (p *ExcelParser) Parse(_ context.Context, fileName string, content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to open workbook %s: %w", fileName, err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Sheet: %s\n", sheet)
		for _, row := range rows {
			b.WriteString(strings.Join(row, " | "))
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}
