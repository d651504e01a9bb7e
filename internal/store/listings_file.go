package store

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/listing-trust/internal/model"
)

// FormatJSON reads a JSON array of listings.
const FormatJSON = "json"

// ReadListings decodes a listing file for bulk import. Tabular formats
// need a header row; column names are matched case-insensitively with
// underscores ignored, so start_date and startDate are the same column.
// Images are separated by ";".
func ReadListings(r io.Reader, format string) ([]*model.Listing, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		var out []*model.Listing
		if err := json.NewDecoder(r).Decode(&out); err != nil {
			return nil, eris.Wrap(err, "listings: decode json")
		}
		return out, nil
	case FormatCSV:
		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		records, err := reader.ReadAll()
		if err != nil {
			return nil, eris.Wrap(err, "listings: read csv")
		}
		return listingsFromRows(records)
	case FormatXLSX:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, eris.Wrap(err, "listings: read xlsx")
		}
		f, err := xlsx.OpenBinary(data)
		if err != nil {
			return nil, eris.Wrap(err, "listings: open xlsx")
		}
		if len(f.Sheets) == 0 {
			return nil, eris.New("listings: xlsx has no sheets")
		}
		rows := make([][]string, 0, len(f.Sheets[0].Rows))
		for _, row := range f.Sheets[0].Rows {
			cells := make([]string, len(row.Cells))
			for j, cell := range row.Cells {
				cells[j] = cell.String()
			}
			rows = append(rows, cells)
		}
		return listingsFromRows(rows)
	default:
		return nil, eris.Errorf("listings: unknown format %q", format)
	}
}

func headerKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "")
}

func listingsFromRows(rows [][]string) ([]*model.Listing, error) {
	if len(rows) == 0 {
		return nil, eris.New("listings: missing header row")
	}
	col := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		col[headerKey(h)] = i
	}
	if _, ok := col["id"]; !ok {
		return nil, eris.New("listings: header has no id column")
	}

	out := make([]*model.Listing, 0, len(rows)-1)
	for n, rec := range rows[1:] {
		get := func(name string) string {
			if i, ok := col[name]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		if strings.Join(rec, "") == "" {
			continue
		}

		l := &model.Listing{
			ID:          get("id"),
			Category:    strings.ToLower(get("category")),
			Title:       get("title"),
			Description: get("description"),
			Origin:      get("origin"),
			Destination: get("destination"),
			Location:    get("location"),
			Currency:    strings.ToUpper(get("currency")),
			Images:      []string{},
		}
		line := n + 2
		for _, d := range []struct {
			name string
			dst  **model.Date
		}{{"startdate", &l.StartDate}, {"enddate", &l.EndDate}} {
			v := get(d.name)
			if v == "" {
				continue
			}
			parsed, err := model.ParseDate(v)
			if err != nil {
				return nil, eris.Wrapf(err, "listings: row %d %s", line, d.name)
			}
			*d.dst = &parsed
		}
		if v := get("price"); v != "" {
			p, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, eris.Wrapf(model.ErrInvalidInput, "listings: row %d price %q", line, v)
			}
			l.Price = &p
		}
		for _, img := range strings.Split(get("images"), ";") {
			if img = strings.TrimSpace(img); img != "" {
				l.Images = append(l.Images, img)
			}
		}
		out = append(out, l)
	}
	return out, nil
}

// FormatFromPath maps a file extension to a listing or export format.
// Unknown extensions yield "".
func FormatFromPath(path string) string {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext {
	case FormatJSON, FormatCSV, FormatXLSX:
		return ext
	default:
		return ""
	}
}
