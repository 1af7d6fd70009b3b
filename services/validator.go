package services

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/opendisclosures/disclosure-backend/models"
)

var ssnPattern = regexp.MustCompile(`^\d{3}-\d{2}-\d{4}$`)

// validationRule is one named check. It returns an empty string when the
// record passes and a failure reason otherwise.
type validationRule struct {
	name  string
	check func(r *models.RawDisclosureRecord) string
}

// RecordValidator checks structural and semantic correctness of one raw
// record. Rules run in fixed order and the first failing rule wins; extra
// fields are ignored, never rejected. Pure function of its input.
type RecordValidator struct {
	rules []validationRule
}

func NewRecordValidator() *RecordValidator {
	return &RecordValidator{
		rules: []validationRule{
			{name: "required_fields", check: checkRequiredFields},
			{name: "transaction_date", check: checkTransactionDate},
			{name: "ssn_format", check: checkSSNFormat},
			{name: "email_format", check: checkEmailFormat},
		},
	}
}

// Validate returns (true, "") for a valid record, or (false, reason) for
// the first rule that fails.
func (v *RecordValidator) Validate(r *models.RawDisclosureRecord) (bool, string) {
	for _, rule := range v.rules {
		if reason := rule.check(r); reason != "" {
			return false, reason
		}
	}
	return true, ""
}

func checkRequiredFields(r *models.RawDisclosureRecord) string {
	required := []struct {
		name  string
		value string
	}{
		{"disclosure_id", r.DisclosureID},
		{"institution_name", r.InstitutionName},
		{"transaction_date", r.TransactionDate},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Sprintf("missing_required_field:%s", field.name)
		}
	}
	return ""
}

func checkTransactionDate(r *models.RawDisclosureRecord) string {
	// YYYY-MM-DD only; no future-date or range checks.
	if _, err := time.Parse("2006-01-02", r.TransactionDate); err != nil {
		return "invalid_transaction_date"
	}
	return ""
}

func checkSSNFormat(r *models.RawDisclosureRecord) string {
	if !ssnPattern.MatchString(r.SSN) {
		return "invalid_ssn_format"
	}
	return ""
}

func checkEmailFormat(r *models.RawDisclosureRecord) string {
	local, domain, found := strings.Cut(r.Email, "@")
	if !found || local == "" || domain == "" || strings.Contains(domain, "@") {
		return "invalid_email_format"
	}
	return ""
}
