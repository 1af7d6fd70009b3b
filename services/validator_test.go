package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opendisclosures/disclosure-backend/models"
)

func validRecord() models.RawDisclosureRecord {
	return models.RawDisclosureRecord{
		DisclosureID:    "d-1",
		InstitutionName: "First National",
		ReportingRegion: "2ND",
		TransactionDate: "2024-03-01",
		SSN:             "123-45-6789",
		Email:           "jdoe@example.com",
	}
}

func TestValidateAcceptsWellFormedRecord(t *testing.T) {
	v := NewRecordValidator()

	rec := validRecord()
	valid, reason := v.Validate(&rec)

	assert.True(t, valid)
	assert.Empty(t, reason)
}

func TestValidateFailureReasons(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(r *models.RawDisclosureRecord)
		reason string
	}{
		{
			name:   "missing disclosure id",
			mutate: func(r *models.RawDisclosureRecord) { r.DisclosureID = "" },
			reason: "missing_required_field:disclosure_id",
		},
		{
			name:   "whitespace institution name",
			mutate: func(r *models.RawDisclosureRecord) { r.InstitutionName = "   " },
			reason: "missing_required_field:institution_name",
		},
		{
			name:   "missing transaction date",
			mutate: func(r *models.RawDisclosureRecord) { r.TransactionDate = "" },
			reason: "missing_required_field:transaction_date",
		},
		{
			name:   "date not ISO formatted",
			mutate: func(r *models.RawDisclosureRecord) { r.TransactionDate = "03/01/2024" },
			reason: "invalid_transaction_date",
		},
		{
			name:   "date with impossible month",
			mutate: func(r *models.RawDisclosureRecord) { r.TransactionDate = "2024-13-01" },
			reason: "invalid_transaction_date",
		},
		{
			name:   "ssn without separators",
			mutate: func(r *models.RawDisclosureRecord) { r.SSN = "123456789" },
			reason: "invalid_ssn_format",
		},
		{
			name:   "ssn with letters",
			mutate: func(r *models.RawDisclosureRecord) { r.SSN = "abc-de-fghi" },
			reason: "invalid_ssn_format",
		},
		{
			name:   "email without at sign",
			mutate: func(r *models.RawDisclosureRecord) { r.Email = "jdoe.example.com" },
			reason: "invalid_email_format",
		},
		{
			name:   "email with empty local part",
			mutate: func(r *models.RawDisclosureRecord) { r.Email = "@example.com" },
			reason: "invalid_email_format",
		},
		{
			name:   "email with two at signs",
			mutate: func(r *models.RawDisclosureRecord) { r.Email = "jdoe@@example.com" },
			reason: "invalid_email_format",
		},
	}

	v := NewRecordValidator()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := validRecord()
			tc.mutate(&rec)

			valid, reason := v.Validate(&rec)
			assert.False(t, valid)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

// A record failing multiple rules reports the earliest rule in the fixed
// order, so quarantine reasons are deterministic.
func TestValidateFirstFailingRuleWins(t *testing.T) {
	v := NewRecordValidator()

	rec := validRecord()
	rec.DisclosureID = ""
	rec.TransactionDate = "not-a-date"
	rec.SSN = "bogus"

	valid, reason := v.Validate(&rec)
	assert.False(t, valid)
	assert.Equal(t, "missing_required_field:disclosure_id", reason)
}

func TestValidateIgnoresExtraFields(t *testing.T) {
	v := NewRecordValidator()

	rec := validRecord()
	rec.Extra = map[string]string{"anything": "goes", "amount": "not-a-number"}

	valid, reason := v.Validate(&rec)
	assert.True(t, valid)
	assert.Empty(t, reason)
}
