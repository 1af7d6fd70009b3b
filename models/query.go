package models

// SearchQuery is a normalized read request. All filters are optional; the
// planner decides which access pattern serves the combination that is
// actually present.
type SearchQuery struct {
	DisclosureID string
	Institution  string
	Region       string
	Date         string
	Contains     string
	Limit        int
	PageToken    string
}

// SearchResult is an ordered page of masked records. NextToken is set when
// more results exist beyond this page; an absent token means the result is
// complete.
type SearchResult struct {
	Count     int                      `json:"count"`
	Items     []MaskedDisclosureRecord `json:"items"`
	NextToken string                   `json:"next_token,omitempty"`
}
