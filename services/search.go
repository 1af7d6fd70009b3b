package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opendisclosures/disclosure-backend/models"
	"github.com/opendisclosures/disclosure-backend/shared"
	storepkg "github.com/opendisclosures/disclosure-backend/store"
)

// DefaultQueryLimit is applied when a request supplies no limit.
const DefaultQueryLimit = 25

// SearchService executes query plans against the serving store: it clamps
// the limit, applies post-filters incrementally, orders results ascending
// by transaction_date with a disclosure_id tie-break, and exposes a
// continuation token when more data exists.
type SearchService struct {
	store    storepkg.ServingStore
	planner  *QueryPlanner
	maxLimit int
	retry    shared.RetryPolicy
	metrics  *shared.ServiceMetrics
}

func NewSearchService(store storepkg.ServingStore, maxLimit int) *SearchService {
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &SearchService{
		store:    store,
		planner:  NewQueryPlanner(),
		maxLimit: maxLimit,
		// Transient store errors are retried once before surfacing.
		retry:   shared.NewRetryPolicy(2, 100*time.Millisecond, time.Second),
		metrics: shared.NewServiceMetrics("search-service"),
	}
}

// Metrics exposes the service's request counters.
func (s *SearchService) Metrics() *shared.ServiceMetrics {
	return s.metrics
}

// Search plans and executes one read request.
func (s *SearchService) Search(ctx context.Context, q models.SearchQuery) (*models.SearchResult, error) {
	start := time.Now()
	result, err := s.search(ctx, q)
	s.metrics.RecordRequest(err == nil, time.Since(start))
	return result, err
}

func (s *SearchService) search(ctx context.Context, q models.SearchQuery) (*models.SearchResult, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	var after *storepkg.Cursor
	if q.PageToken != "" {
		cursor, err := storepkg.DecodeToken(q.PageToken)
		if err != nil {
			return nil, shared.NewServiceError(shared.ErrorCategoryRequest, "INVALID_TOKEN", "next token is not valid", "search-service", "Search", false, err)
		}
		after = cursor
	}

	plan := s.planner.Plan(&q)

	logrus.WithFields(logrus.Fields{
		"component":   "SearchService",
		"access_kind": plan.Kind,
		"limit":       limit,
	}).Debug("Executing query plan")

	switch plan.Kind {
	case AccessNone:
		return emptyResult(), nil

	case AccessGet:
		return s.executeGet(ctx, plan)

	case AccessIndex:
		storeQuery := storepkg.Query{
			Index:      plan.Index,
			Partition:  plan.Partition,
			DateEquals: plan.DateEquals,
			Filter:     planFilter(plan),
			After:      after,
			Limit:      limit,
		}
		return s.executePage(ctx, "QueryByIndex", func(ctx context.Context) (*storepkg.Page, error) {
			return s.store.QueryByIndex(ctx, storeQuery)
		})

	case AccessScan:
		storeQuery := storepkg.Query{
			Filter: planFilter(plan),
			After:  after,
			Limit:  limit,
		}
		return s.executePage(ctx, "ScanWithFilter", func(ctx context.Context) (*storepkg.Page, error) {
			return s.store.ScanWithFilter(ctx, storeQuery)
		})
	}

	return emptyResult(), nil
}

func (s *SearchService) executeGet(ctx context.Context, plan Plan) (*models.SearchResult, error) {
	var rec *models.MaskedDisclosureRecord
	err := s.retry.Do(ctx, "Get", func() error {
		var getErr error
		rec, getErr = s.store.Get(ctx, plan.DisclosureID)
		if getErr == storepkg.ErrNotFound {
			rec = nil
			return nil
		}
		return getErr
	})
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryDatabase, "STORE_GET_FAILED", "search-service", "Search", shared.IsRetryableError(err))
	}

	if rec == nil {
		return emptyResult(), nil
	}
	return &models.SearchResult{
		Count: 1,
		Items: []models.MaskedDisclosureRecord{*rec},
	}, nil
}

func (s *SearchService) executePage(ctx context.Context, operation string, fetch func(context.Context) (*storepkg.Page, error)) (*models.SearchResult, error) {
	var page *storepkg.Page
	err := s.retry.Do(ctx, operation, func() error {
		var fetchErr error
		page, fetchErr = fetch(ctx)
		return fetchErr
	})
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryDatabase, "STORE_QUERY_FAILED", "search-service", "Search", shared.IsRetryableError(err))
	}

	result := &models.SearchResult{
		Count: len(page.Records),
		Items: page.Records,
	}
	if result.Items == nil {
		result.Items = []models.MaskedDisclosureRecord{}
	}

	if page.More && len(page.Records) > 0 {
		last := page.Records[len(page.Records)-1]
		result.NextToken = storepkg.EncodeToken(storepkg.Cursor{
			TransactionDate: last.TransactionDate,
			DisclosureID:    last.DisclosureID,
		})
	}
	return result, nil
}

// planFilter builds the client-side post-filter for a plan: the contains
// predicate plus, on the scan path, any date filter that had no index to
// live in. Limits are honored after this filter, not before.
func planFilter(plan Plan) func(*models.MaskedDisclosureRecord) bool {
	if plan.Contains == "" && plan.PostDate == "" {
		return nil
	}
	return func(rec *models.MaskedDisclosureRecord) bool {
		if plan.PostDate != "" && rec.TransactionDate != plan.PostDate {
			return false
		}
		if plan.Contains != "" && !matchesContains(rec, plan.Contains) {
			return false
		}
		return true
	}
}

func emptyResult() *models.SearchResult {
	return &models.SearchResult{
		Count: 0,
		Items: []models.MaskedDisclosureRecord{},
	}
}
