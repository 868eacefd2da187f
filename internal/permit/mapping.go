package permit

import "strings"

// Field is a semantic column of a candidate record.
type Field string

const (
	FieldPermitNumber   Field = "permit_number"
	FieldPermitType     Field = "permit_type"
	FieldIssuedFor      Field = "issued_for"
	FieldNameEnglish    Field = "name_english"
	FieldNameArabic     Field = "name_arabic"
	FieldMOINumber      Field = "moi_number"
	FieldPassportNumber Field = "passport_number"
	FieldNationality    Field = "nationality"
	FieldPlateNumber    Field = "plate_number"
	FieldIssueLocation  Field = "issue_location"
	FieldIssueDate      Field = "issue_date"
	FieldExpiryDate     Field = "expiry_date"
)

// fieldSynonyms is the declarative header-matching table. For each semantic
// field, a header column matches when it contains every token of at least one
// synonym set (case-insensitive). Order matters twice over: fields are
// resolved top to bottom, and each CSV column is claimed by at most one
// field, so the more specific fields must come first.
var fieldSynonyms = []struct {
	Field    Field
	Label    string
	Synonyms [][]string
}{
	{FieldPermitNumber, "Permit Number", [][]string{
		{"permit", "no"}, {"permit", "number"}, {"permit", "id"}, {"istimara"},
	}},
	{FieldIssuedFor, "Issued For", [][]string{
		{"issued", "for"}, {"issue", "for"},
	}},
	{FieldPermitType, "Permit Type", [][]string{
		{"permit", "type"}, {"card", "type"}, {"type"},
	}},
	{FieldNameEnglish, "Name (English)", [][]string{
		{"english", "name"}, {"name", "eng"}, {"latin", "name"},
	}},
	{FieldNameArabic, "Name (Arabic)", [][]string{
		{"arabic"}, {"name", "arab"},
	}},
	{FieldMOINumber, "MOI Number", [][]string{
		{"moi"}, {"qid"}, {"identity", "number"}, {"national", "id"},
	}},
	{FieldPassportNumber, "Passport Number", [][]string{
		{"passport"},
	}},
	{FieldNationality, "Nationality", [][]string{
		{"nationality"}, {"country"},
	}},
	{FieldPlateNumber, "Plate Number", [][]string{
		{"plate"}, {"vehicle", "no"},
	}},
	{FieldExpiryDate, "Expiry Date", [][]string{
		{"expiry"}, {"expire"}, {"end", "date"}, {"valid", "until"},
	}},
	{FieldIssueDate, "Issue Date", [][]string{
		{"issue", "date"}, {"start", "date"}, {"issued", "on"},
	}},
	{FieldIssueLocation, "Issue Location", [][]string{
		{"location"}, {"issue", "place"}, {"issued", "at"},
	}},
}

// mandatoryFields lists the fields a candidate must carry to be valid,
// in the order their "X is required" messages are reported.
var mandatoryFields = []Field{
	FieldPermitNumber,
	FieldNameEnglish,
	FieldMOINumber,
	FieldIssueDate,
	FieldExpiryDate,
	FieldPermitType,
	FieldIssuedFor,
	FieldIssueLocation,
}

// FieldLabel returns the human-readable label for a field, used in
// validation messages and the mapping preview.
func FieldLabel(f Field) string {
	for _, fs := range fieldSynonyms {
		if fs.Field == f {
			return fs.Label
		}
	}
	return string(f)
}

// FieldMapping maps semantic fields to column positions in the source rows.
// It is produced once per upload from the header row and passed into the
// parser as a parameter.
type FieldMapping map[Field]int

// MapHeader builds a FieldMapping from a raw header row using the synonym
// table. Unrecognized columns are ignored; a field whose synonyms match no
// column is absent from the mapping (the per-row validator reports it as
// missing if mandatory).
func MapHeader(header []string) FieldMapping {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = strings.ToLower(CleanCell(h))
	}

	mapping := make(FieldMapping, len(fieldSynonyms))
	claimed := make([]bool, len(header))

	for _, fs := range fieldSynonyms {
		for i, col := range normalized {
			if claimed[i] || col == "" {
				continue
			}
			if headerMatches(col, fs.Synonyms) {
				mapping[fs.Field] = i
				claimed[i] = true
				break
			}
		}
	}

	return mapping
}

// Describe returns a field-label to header-name view of the mapping, for
// preview display before an import is started.
func (m FieldMapping) Describe(header []string) map[string]string {
	out := make(map[string]string, len(m))
	for f, idx := range m {
		if idx >= 0 && idx < len(header) {
			out[FieldLabel(f)] = CleanCell(header[idx])
		}
	}
	return out
}

// HasMandatory reports whether every mandatory field resolved to a column.
// A missing mandatory column does not abort an upload: every row simply
// fails validation for that field, which is what the uploader needs to see.
func (m FieldMapping) HasMandatory() bool {
	for _, f := range mandatoryFields {
		if _, ok := m[f]; !ok {
			return false
		}
	}
	return true
}

// headerMatches reports whether the normalized column name contains every
// token of at least one synonym set.
func headerMatches(col string, sets [][]string) bool {
	for _, set := range sets {
		all := true
		for _, token := range set {
			if !strings.Contains(col, token) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}
