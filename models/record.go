package models

// RawDisclosureRecord is one row of an input batch. It exists only for the
// duration of a single ingestion pass and is never written to the serving
// store as-is.
type RawDisclosureRecord struct {
	DisclosureID    string `json:"disclosure_id"`
	InstitutionName string `json:"institution_name"`
	ReportingRegion string `json:"reporting_region"`
	TransactionDate string `json:"transaction_date"`
	SSN             string `json:"ssn"`
	Email           string `json:"email"`

	// Extra holds any additional CSV columns, passed through untouched.
	Extra map[string]string `json:"extra,omitempty"`
}

// Fields returns the record as a flat field map, the shape quarantine
// payloads are written in.
func (r *RawDisclosureRecord) Fields() map[string]string {
	fields := map[string]string{
		"disclosure_id":    r.DisclosureID,
		"institution_name": r.InstitutionName,
		"reporting_region": r.ReportingRegion,
		"transaction_date": r.TransactionDate,
		"ssn":              r.SSN,
		"email":            r.Email,
	}
	for k, v := range r.Extra {
		fields[k] = v
	}
	return fields
}

// MaskedDisclosureRecord is the serving-store representation of a valid
// record. It must never contain a raw SSN or raw email in any field.
// DisclosureID is the primary key; writes are idempotent overwrites.
type MaskedDisclosureRecord struct {
	DisclosureID    string            `json:"disclosure_id"`
	InstitutionName string            `json:"institution_name"`
	ReportingRegion string            `json:"reporting_region"`
	TransactionDate string            `json:"transaction_date"`
	SSNMasked       string            `json:"ssn_masked"`
	EmailMasked     string            `json:"email_masked"`
	HashID          string            `json:"hash_id"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// QuarantinedRecord pairs a raw record with the validation failure that
// rejected it. Quarantined records are never masked and never inserted into
// the serving store.
type QuarantinedRecord struct {
	Row    map[string]string `json:"row"`
	Reason string            `json:"reason"`
}
