// Package store provides the narrow serving-store surface the pipelines
// are written against: idempotent keyed batch writes, single-key lookup,
// secondary-index queries and a filtered scan. The Postgres implementation
// backs production; the in-memory implementation backs tests.
package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opendisclosures/disclosure-backend/models"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("record not found")

// IndexName selects one of the two secondary access paths.
type IndexName string

const (
	IndexInstitutionDate IndexName = "institution_date"
	IndexRegionDate      IndexName = "region_date"
)

// Cursor is a keyset position in the (transaction_date, disclosure_id)
// ordering. Pages resume strictly after it.
type Cursor struct {
	TransactionDate string `json:"d"`
	DisclosureID    string `json:"id"`
}

// Query describes one fetch against the store. Partition and DateEquals
// apply to the selected index; Filter is an optional client-side predicate
// applied incrementally, so Limit counts records after filtering.
type Query struct {
	Index      IndexName
	Partition  string
	DateEquals string
	Filter     func(*models.MaskedDisclosureRecord) bool
	After      *Cursor
	Limit      int
}

// Page is one ordered page of results. More reports that data exists
// beyond the last record returned.
type Page struct {
	Records []models.MaskedDisclosureRecord
	More    bool
}

// ServingStore is the storage contract shared by the ingestion and query
// pipelines. All results are ordered ascending by transaction_date with a
// stable disclosure_id tie-break.
type ServingStore interface {
	// PutBatch upserts records keyed on disclosure_id and returns the ids
	// it could not persist. A non-empty unprocessed list with a nil error
	// means the subset is worth retrying.
	PutBatch(ctx context.Context, records []models.MaskedDisclosureRecord) ([]string, error)

	// Get returns the record for a disclosure id, or ErrNotFound.
	Get(ctx context.Context, disclosureID string) (*models.MaskedDisclosureRecord, error)

	// QueryByIndex runs an equality/range query against a secondary index.
	QueryByIndex(ctx context.Context, q Query) (*Page, error)

	// ScanWithFilter walks the whole table in order, applying q.Filter.
	ScanWithFilter(ctx context.Context, q Query) (*Page, error)
}

// EncodeToken turns a cursor into an opaque continuation token.
func EncodeToken(c Cursor) string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeToken parses a continuation token produced by EncodeToken.
func DecodeToken(token string) (*Cursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("malformed continuation token: %w", err)
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("malformed continuation token: %w", err)
	}
	return &c, nil
}

// afterCursor reports whether rec sorts strictly after the cursor in the
// (transaction_date, disclosure_id) ordering.
func afterCursor(rec *models.MaskedDisclosureRecord, c *Cursor) bool {
	if c == nil {
		return true
	}
	if rec.TransactionDate != c.TransactionDate {
		return rec.TransactionDate > c.TransactionDate
	}
	return rec.DisclosureID > c.DisclosureID
}
