package store

import (
	"context"
	"sort"
	"sync"

	"github.com/opendisclosures/disclosure-backend/models"
)

// InMemory stores masked records in memory with the same ordering and
// paging semantics as the Postgres implementation. Used by tests.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]models.MaskedDisclosureRecord

	// FailPut, when set, makes PutBatch report the matching ids as
	// unprocessed. Lets tests exercise partial-failure and retry paths.
	FailPut func(disclosureID string) bool

	// PutErr, when set, is returned from PutBatch alongside whatever ids
	// went unprocessed on that call.
	PutErr error

	// FailRead, when set, is consulted before each read; a non-nil error
	// is returned in place of results. Lets tests exercise the read retry
	// and error-mapping paths.
	FailRead func() error
}

// NewInMemory creates an empty in-memory serving store.
func NewInMemory() *InMemory {
	return &InMemory{
		records: make(map[string]models.MaskedDisclosureRecord),
	}
}

// PutBatch upserts records keyed on disclosure_id.
func (s *InMemory) PutBatch(_ context.Context, records []models.MaskedDisclosureRecord) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var unprocessed []string
	for _, rec := range records {
		if s.FailPut != nil && s.FailPut(rec.DisclosureID) {
			unprocessed = append(unprocessed, rec.DisclosureID)
			continue
		}
		s.records[rec.DisclosureID] = rec
	}
	return unprocessed, s.PutErr
}

// Get returns the record for a disclosure id, or ErrNotFound.
func (s *InMemory) Get(_ context.Context, disclosureID string) (*models.MaskedDisclosureRecord, error) {
	if s.FailRead != nil {
		if err := s.FailRead(); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.records[disclosureID]; ok {
		return &rec, nil
	}
	return nil, ErrNotFound
}

// QueryByIndex runs an equality/range query against one of the indexes.
func (s *InMemory) QueryByIndex(_ context.Context, q Query) (*Page, error) {
	if s.FailRead != nil {
		if err := s.FailRead(); err != nil {
			return nil, err
		}
	}

	match := func(rec *models.MaskedDisclosureRecord) bool {
		var partition string
		switch q.Index {
		case IndexInstitutionDate:
			partition = rec.InstitutionName
		case IndexRegionDate:
			partition = rec.ReportingRegion
		}
		if partition != q.Partition {
			return false
		}
		if q.DateEquals != "" && rec.TransactionDate != q.DateEquals {
			return false
		}
		return true
	}
	return s.page(match, q), nil
}

// ScanWithFilter walks all records in order, applying q.Filter.
func (s *InMemory) ScanWithFilter(_ context.Context, q Query) (*Page, error) {
	if s.FailRead != nil {
		if err := s.FailRead(); err != nil {
			return nil, err
		}
	}
	return s.page(nil, q), nil
}

// Len returns the number of stored records.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *InMemory) page(match func(*models.MaskedDisclosureRecord) bool, q Query) *Page {
	s.mu.RLock()
	ordered := make([]models.MaskedDisclosureRecord, 0, len(s.records))
	for _, rec := range s.records {
		ordered = append(ordered, rec)
	}
	s.mu.RUnlock()

	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].TransactionDate != ordered[j].TransactionDate {
			return ordered[i].TransactionDate < ordered[j].TransactionDate
		}
		return ordered[i].DisclosureID < ordered[j].DisclosureID
	})

	page := &Page{}
	for i := range ordered {
		rec := &ordered[i]
		if !afterCursor(rec, q.After) {
			continue
		}
		if match != nil && !match(rec) {
			continue
		}
		if q.Filter != nil && !q.Filter(rec) {
			continue
		}
		if q.Limit > 0 && len(page.Records) == q.Limit {
			page.More = true
			break
		}
		page.Records = append(page.Records, *rec)
	}
	return page
}
