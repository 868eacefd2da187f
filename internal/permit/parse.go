package permit

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxHeaderSearchRows is the maximum number of leading rows scanned for the
// header. Exported spreadsheets often carry a title or filter row first.
var MaxHeaderSearchRows = 20

// minHeaderFields is the number of semantic fields a row must resolve to
// before it is accepted as the header.
const minHeaderFields = 3

// ParsedUpload is the outcome of parsing one uploaded file: the detected
// header, the field mapping derived from it, and the candidate rows in
// source order.
type ParsedUpload struct {
	Header     []string
	Mapping    FieldMapping
	Candidates []Candidate
}

// ParseUpload turns raw CSV bytes into validated candidate records. The
// header row is located by fuzzy matching against the field synonym table;
// data rows follow it. Returns an error only for file-level problems (empty
// file, unreadable CSV, no recognizable header) — per-row validation
// failures are carried on the candidates themselves.
func ParseUpload(data []byte) (*ParsedUpload, error) {
	data = sanitizeUTF8(stripBOM(data))

	records, err := parseCSV(data)
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty file")
	}

	headerIdx, mapping := findHeader(records)
	if headerIdx < 0 {
		return nil, fmt.Errorf("no recognizable header row in first %d rows", MaxHeaderSearchRows)
	}

	// Line numbers are 1-based and count from the top of the file, so the
	// first data row is headerIdx+2.
	candidates := ParseCandidates(records[headerIdx+1:], mapping, headerIdx+2)

	return &ParsedUpload{
		Header:     records[headerIdx],
		Mapping:    mapping,
		Candidates: candidates,
	}, nil
}

// ParseCandidates converts raw data rows into candidates using a prebuilt
// mapping. firstLine is the 1-based source line number of rows[0]. Blank
// rows and rows carrying neither a permit number nor a holder name are
// dropped silently; every other row is returned, valid or not.
func ParseCandidates(rows [][]string, mapping FieldMapping, firstLine int) []Candidate {
	candidates := make([]Candidate, 0, len(rows))

	for i, row := range rows {
		if isEmptyRow(row) {
			continue
		}

		c := Candidate{
			RowNumber:      firstLine + i,
			PermitNumber:   cell(row, mapping, FieldPermitNumber),
			PermitType:     cell(row, mapping, FieldPermitType),
			IssuedFor:      cell(row, mapping, FieldIssuedFor),
			NameEnglish:    cell(row, mapping, FieldNameEnglish),
			NameArabic:     cell(row, mapping, FieldNameArabic),
			MOINumber:      cell(row, mapping, FieldMOINumber),
			PassportNumber: cell(row, mapping, FieldPassportNumber),
			Nationality:    cell(row, mapping, FieldNationality),
			PlateNumber:    cell(row, mapping, FieldPlateNumber),
			IssueLocation:  cell(row, mapping, FieldIssueLocation),
			IssueDate:      cell(row, mapping, FieldIssueDate),
			ExpiryDate:     cell(row, mapping, FieldExpiryDate),
		}

		// A row with no identifying content at all is almost certainly a
		// stray spreadsheet row, not a data-entry mistake worth reporting.
		if c.PermitNumber == "" && c.NameEnglish == "" && c.NameArabic == "" {
			continue
		}

		c.Errors = validate(c)
		candidates = append(candidates, c)
	}

	return candidates
}

// validate returns one "X is required" message per missing mandatory field.
func validate(c Candidate) []string {
	var errs []string
	for _, f := range mandatoryFields {
		if fieldValue(c, f) == "" {
			errs = append(errs, FieldLabel(f)+" is required")
		}
	}
	return errs
}

func fieldValue(c Candidate, f Field) string {
	switch f {
	case FieldPermitNumber:
		return c.PermitNumber
	case FieldPermitType:
		return c.PermitType
	case FieldIssuedFor:
		return c.IssuedFor
	case FieldNameEnglish:
		return c.NameEnglish
	case FieldNameArabic:
		return c.NameArabic
	case FieldMOINumber:
		return c.MOINumber
	case FieldPassportNumber:
		return c.PassportNumber
	case FieldNationality:
		return c.Nationality
	case FieldPlateNumber:
		return c.PlateNumber
	case FieldIssueLocation:
		return c.IssueLocation
	case FieldIssueDate:
		return c.IssueDate
	case FieldExpiryDate:
		return c.ExpiryDate
	}
	return ""
}

// cell extracts one mapped field from a row, cleaned and NFC-normalized.
// Arabic names in particular arrive in mixed composed/decomposed forms
// depending on the spreadsheet tool that produced the file.
func cell(row []string, mapping FieldMapping, f Field) string {
	idx, ok := mapping[f]
	if !ok || idx < 0 || idx >= len(row) {
		return ""
	}
	return norm.NFC.String(CleanCell(row[idx]))
}

// CleanCell removes common CSV artifacts from a cell value: surrounding
// whitespace, Excel formula prefixes (="..."), and stray quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)

	return strings.TrimSpace(s)
}

// findHeader scans the leading rows for the first one whose columns resolve
// to enough semantic fields to serve as the header.
func findHeader(records [][]string) (int, FieldMapping) {
	maxRows := MaxHeaderSearchRows
	if len(records) < maxRows {
		maxRows = len(records)
	}

	for i := 0; i < maxRows; i++ {
		mapping := MapHeader(records[i])
		if len(mapping) >= minHeaderFields {
			return i, mapping
		}
	}
	return -1, nil
}

func parseCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// stripBOM removes a UTF-8 byte order mark if present. Excel exports one.
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// sanitizeUTF8 replaces invalid byte sequences with the Unicode replacement
// character so the CSV reader never chokes on Windows-1252 leftovers.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}
