package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/opendisclosures/disclosure-backend/models"
)

const maskChar = '*'

// MaskingEngine derives masked and hashed fields from raw PII. The salt is
// process-wide configuration, supplied externally and never derived from
// input data. Masking is only invoked after validation succeeds and never
// fails on a pre-validated record.
type MaskingEngine struct {
	salt string
}

func NewMaskingEngine(salt string) *MaskingEngine {
	return &MaskingEngine{salt: salt}
}

// Mask produces the serving-store representation of a valid raw record.
// All non-PII fields are carried through unchanged; the raw SSN and email
// appear nowhere in the output.
func (m *MaskingEngine) Mask(r *models.RawDisclosureRecord) models.MaskedDisclosureRecord {
	return models.MaskedDisclosureRecord{
		DisclosureID:    r.DisclosureID,
		InstitutionName: strings.TrimSpace(r.InstitutionName),
		ReportingRegion: strings.TrimSpace(r.ReportingRegion),
		TransactionDate: strings.TrimSpace(r.TransactionDate),
		SSNMasked:       MaskSSN(strings.TrimSpace(r.SSN)),
		EmailMasked:     MaskEmail(strings.TrimSpace(r.Email)),
		HashID:          m.HashID(strings.TrimSpace(r.SSN), strings.TrimSpace(r.Email)),
		Extra:           r.Extra,
	}
}

// HashID computes a deterministic salted digest over the canonical
// concatenation of raw SSN and raw email. Same input and salt always yield
// the same digest; changing the salt changes every digest, so ids cannot
// be correlated across deployments.
func (m *MaskingEngine) HashID(ssn, email string) string {
	mac := hmac.New(sha256.New, []byte(m.salt))
	mac.Write([]byte(ssn))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(email))
	return hex.EncodeToString(mac.Sum(nil))
}

// MaskSSN replaces all but the last 4 characters with the mask character,
// preserving separators: 123-45-6789 becomes ***-**-6789.
func MaskSSN(ssn string) string {
	masked := []rune(ssn)
	keep := 4
	for i := len(masked) - 1; i >= 0; i-- {
		if masked[i] == '-' {
			continue
		}
		if keep > 0 {
			keep--
			continue
		}
		masked[i] = maskChar
	}
	return string(masked)
}

// MaskEmail keeps the first character of the local part and the domain,
// masking the rest of the local part: jdoe@example.com becomes
// j***@example.com.
func MaskEmail(email string) string {
	local, domain, found := strings.Cut(email, "@")
	if !found {
		return "***"
	}
	if local == "" {
		return "***@" + domain
	}
	return string([]rune(local)[0]) + "***@" + domain
}
