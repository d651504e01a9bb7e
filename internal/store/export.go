package store

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/listing-trust/internal/model"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

const auditSheet = "trust_audits"

var auditHeader = []string{
	"id", "user_id", "listing_id", "trust_score",
	"consistency", "plausibility", "completeness",
	"flags", "suggested_fixes", "signature", "evaluated_at",
}

// ExportAudits writes audits as a table in the given format, one row per
// audit after a header row. Flags and fixes are joined with ";".
func ExportAudits(w io.Writer, audits []model.TrustAudit, format string) error {
	switch strings.ToLower(format) {
	case FormatCSV:
		return exportCSV(w, audits)
	case FormatXLSX:
		return exportXLSX(w, audits)
	default:
		return eris.Errorf("export: unknown format %q", format)
	}
}

func auditRecord(a model.TrustAudit) []string {
	codes := make([]string, len(a.Flags))
	for i, f := range a.Flags {
		codes[i] = f.Code
	}
	fields := make([]string, len(a.SuggestedFixes))
	for i, f := range a.SuggestedFixes {
		fields[i] = f.Field
	}
	return []string{
		a.ID,
		a.UserID,
		a.ListingID,
		strconv.Itoa(a.TrustScore),
		strconv.Itoa(a.SubScores.Consistency),
		strconv.Itoa(a.SubScores.Plausibility),
		strconv.Itoa(a.SubScores.Completeness),
		strings.Join(codes, ";"),
		strings.Join(fields, ";"),
		a.Signature,
		a.EvaluatedAt.UTC().Format(time.RFC3339),
	}
}

func exportCSV(w io.Writer, audits []model.TrustAudit) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(auditHeader); err != nil {
		return eris.Wrap(err, "export: csv header")
	}
	for _, a := range audits {
		if err := cw.Write(auditRecord(a)); err != nil {
			return eris.Wrapf(err, "export: csv audit %s", a.ID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: csv flush")
}

// numericCols index the auditHeader columns written as numbers.
var numericCols = map[int]bool{3: true, 4: true, 5: true, 6: true}

func exportXLSX(w io.Writer, audits []model.TrustAudit) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(auditSheet)
	if err != nil {
		return eris.Wrap(err, "export: xlsx add sheet")
	}

	header := sheet.AddRow()
	for _, h := range auditHeader {
		header.AddCell().SetString(h)
	}
	for _, a := range audits {
		row := sheet.AddRow()
		for i, v := range auditRecord(a) {
			cell := row.AddCell()
			if numericCols[i] {
				n, _ := strconv.Atoi(v)
				cell.SetInt(n)
				continue
			}
			cell.SetString(v)
		}
	}
	return eris.Wrap(f.Write(w), "export: xlsx write")
}
