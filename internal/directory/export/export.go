// Package export renders company listings as XLSX workbooks.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/index"
	"github.com/xuri/excelize/v2"
)

// SheetName is the single sheet every export contains.
const SheetName = "Companies"

// ContentType is the MIME type of the produced workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var header = []any{"ID", "Название", "Регион", "Город", "Адрес", "Телефоны", "Email", "Сайты", "Рубрика"}

// WriteCompanies writes a workbook with one header row and one row per
// summary, at most maxRows data rows when maxRows > 0.
func WriteCompanies(w io.Writer, companies []*index.Summary, maxRows int) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, bold); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}
	if err := f.SetColWidth(SheetName, "A", "I", 28); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}

	if maxRows > 0 && len(companies) > maxRows {
		companies = companies[:maxRows]
	}
	for i, s := range companies {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := Row(s)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// Row flattens a summary into spreadsheet cells in header order.
func Row(s *index.Summary) []any {
	rubric := ""
	if s.PrimaryRubricName != nil {
		rubric = *s.PrimaryRubricName
	}
	return []any{
		s.ID,
		s.Name,
		s.Region.Name(),
		s.City,
		s.Address,
		strings.Join(s.Phones, ", "),
		strings.Join(s.Emails, ", "),
		strings.Join(s.Websites, ", "),
		rubric,
	}
}

// Filename builds a download name from a rubric slug.
func Filename(slug string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", "\"", "", " ", "_").Replace(slug)
	if name == "" {
		name = "companies"
	}
	return name + ".xlsx"
}
