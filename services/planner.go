package services

import (
	"strings"

	"github.com/opendisclosures/disclosure-backend/models"
	storepkg "github.com/opendisclosures/disclosure-backend/store"
)

// AccessKind names the access pattern a plan uses.
type AccessKind int

const (
	// AccessNone is the health path: no recognized parameter, empty result.
	AccessNone AccessKind = iota
	// AccessGet is a single-key lookup by disclosure id.
	AccessGet
	// AccessIndex is an equality/range query on a secondary index.
	AccessIndex
	// AccessScan is a full-table scan with client-side filtering.
	AccessScan
)

// Plan describes the fetch for one query: which pattern to use, the index
// keys, and the predicates applied after the base fetch.
type Plan struct {
	Kind         AccessKind
	DisclosureID string
	Index        storepkg.IndexName
	Partition    string
	DateEquals   string

	// Contains is the lowercased substring post-filter; it is layered on
	// top of whichever base pattern was selected, never promoted above an
	// indexed match. PostDate carries a date filter the scan path could
	// not push into an index.
	Contains string
	PostDate string
}

// planRule pairs a predicate with the plan it builds. Rules are evaluated
// in fixed order; the first match wins.
type planRule struct {
	name    string
	matches func(q *models.SearchQuery) bool
	build   func(q *models.SearchQuery) Plan
}

// QueryPlanner selects exactly one access pattern for a search query.
// Precedence, in order: single-key lookup, institution index, region
// index, contains-driven scan, health path.
type QueryPlanner struct {
	rules []planRule
}

func NewQueryPlanner() *QueryPlanner {
	return &QueryPlanner{
		rules: []planRule{
			{
				name:    "single_key",
				matches: func(q *models.SearchQuery) bool { return q.DisclosureID != "" },
				build: func(q *models.SearchQuery) Plan {
					return Plan{Kind: AccessGet, DisclosureID: q.DisclosureID}
				},
			},
			{
				name:    "institution_index",
				matches: func(q *models.SearchQuery) bool { return q.Institution != "" },
				build: func(q *models.SearchQuery) Plan {
					return Plan{
						Kind:       AccessIndex,
						Index:      storepkg.IndexInstitutionDate,
						Partition:  q.Institution,
						DateEquals: q.Date,
						Contains:   strings.ToLower(q.Contains),
					}
				},
			},
			{
				name:    "region_index",
				matches: func(q *models.SearchQuery) bool { return q.Region != "" },
				build: func(q *models.SearchQuery) Plan {
					return Plan{
						Kind:       AccessIndex,
						Index:      storepkg.IndexRegionDate,
						Partition:  q.Region,
						DateEquals: q.Date,
						Contains:   strings.ToLower(q.Contains),
					}
				},
			},
			{
				name:    "contains_scan",
				matches: func(q *models.SearchQuery) bool { return q.Contains != "" },
				build: func(q *models.SearchQuery) Plan {
					return Plan{
						Kind:     AccessScan,
						Contains: strings.ToLower(q.Contains),
						PostDate: q.Date,
					}
				},
			},
		},
	}
}

// Plan picks the access pattern for a query. A query matching no rule gets
// the health path: an empty result with count zero, not an error.
func (p *QueryPlanner) Plan(q *models.SearchQuery) Plan {
	for _, rule := range p.rules {
		if rule.matches(q) {
			return rule.build(q)
		}
	}
	return Plan{Kind: AccessNone}
}

// searchableFields returns the text fields a contains filter matches
// against: institution name, reporting region, and all extra field values.
func searchableFields(rec *models.MaskedDisclosureRecord) []string {
	fields := []string{rec.InstitutionName, rec.ReportingRegion}
	for _, value := range rec.Extra {
		fields = append(fields, value)
	}
	return fields
}

// matchesContains reports whether any searchable text field contains the
// lowercased needle, case-insensitively.
func matchesContains(rec *models.MaskedDisclosureRecord, needle string) bool {
	for _, field := range searchableFields(rec) {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
