package permit

import "testing"

func TestMapHeader(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		want   map[Field]int
	}{
		{
			name: "canonical export",
			header: []string{
				"Permit No", "Permit Type", "Issued For", "English Name",
				"Arabic Name", "MOI Number", "Passport", "Nationality",
				"Plate No", "Issue Location", "Issue Date", "Expiry Date",
			},
			want: map[Field]int{
				FieldPermitNumber:   0,
				FieldPermitType:     1,
				FieldIssuedFor:      2,
				FieldNameEnglish:    3,
				FieldNameArabic:     4,
				FieldMOINumber:      5,
				FieldPassportNumber: 6,
				FieldNationality:    7,
				FieldPlateNumber:    8,
				FieldIssueLocation:  9,
				FieldIssueDate:      10,
				FieldExpiryDate:     11,
			},
		},
		{
			name:   "alternate phrasings",
			header: []string{"Istimara", "Card Type", "Name (Eng)", "QID", "Valid Until", "Issued On"},
			want: map[Field]int{
				FieldPermitNumber: 0,
				FieldPermitType:   1,
				FieldNameEnglish:  2,
				FieldMOINumber:    3,
				FieldExpiryDate:   4,
				FieldIssueDate:    5,
			},
		},
		{
			name:   "case insensitive with noise",
			header: []string{" PERMIT NUMBER ", "employee english name", "national id"},
			want: map[Field]int{
				FieldPermitNumber: 0,
				FieldNameEnglish:  1,
				FieldMOINumber:    2,
			},
		},
		{
			name:   "issued for claimed before permit type",
			header: []string{"Permit Issued For", "Permit Type"},
			want: map[Field]int{
				FieldIssuedFor:  0,
				FieldPermitType: 1,
			},
		},
		{
			name:   "expiry not stolen by issue date",
			header: []string{"Expiry Date", "Issue Date"},
			want: map[Field]int{
				FieldExpiryDate: 0,
				FieldIssueDate:  1,
			},
		},
		{
			name:   "each column claimed once",
			header: []string{"Permit Number"},
			want: map[Field]int{
				FieldPermitNumber: 0,
			},
		},
		{
			name:   "unrecognized columns ignored",
			header: []string{"Serial", "Remarks", "Permit No"},
			want: map[Field]int{
				FieldPermitNumber: 2,
			},
		},
		{
			name:   "empty header",
			header: []string{},
			want:   map[Field]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapHeader(tt.header)
			if len(got) != len(tt.want) {
				t.Fatalf("MapHeader() = %v, want %v", got, tt.want)
			}
			for f, idx := range tt.want {
				if got[f] != idx {
					t.Errorf("MapHeader()[%s] = %d, want %d", f, got[f], idx)
				}
			}
		})
	}
}

func TestFieldMappingHasMandatory(t *testing.T) {
	full := MapHeader([]string{
		"Permit No", "Permit Type", "Issued For", "English Name",
		"MOI Number", "Issue Location", "Issue Date", "Expiry Date",
	})
	if !full.HasMandatory() {
		t.Error("HasMandatory() = false for a complete header")
	}

	partial := MapHeader([]string{"Permit No", "English Name"})
	if partial.HasMandatory() {
		t.Error("HasMandatory() = true with missing mandatory columns")
	}
}

func TestFieldMappingDescribe(t *testing.T) {
	header := []string{"Permit No", "QID"}
	m := MapHeader(header)

	desc := m.Describe(header)
	if desc["Permit Number"] != "Permit No" {
		t.Errorf("Describe()[Permit Number] = %q, want %q", desc["Permit Number"], "Permit No")
	}
	if desc["MOI Number"] != "QID" {
		t.Errorf("Describe()[MOI Number] = %q, want %q", desc["MOI Number"], "QID")
	}
}

func TestFieldLabel(t *testing.T) {
	if got := FieldLabel(FieldNameArabic); got != "Name (Arabic)" {
		t.Errorf("FieldLabel(FieldNameArabic) = %q", got)
	}
	if got := FieldLabel(Field("unknown_field")); got != "unknown_field" {
		t.Errorf("FieldLabel(unknown) = %q, want the raw field name", got)
	}
}
