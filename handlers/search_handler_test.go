package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendisclosures/disclosure-backend/models"
	"github.com/opendisclosures/disclosure-backend/services"
	"github.com/opendisclosures/disclosure-backend/store"
)

func newSearchApp(t *testing.T, records ...models.MaskedDisclosureRecord) *fiber.App {
	t.Helper()

	serving := store.NewInMemory()
	if len(records) > 0 {
		_, err := serving.PutBatch(context.Background(), records)
		require.NoError(t, err)
	}

	handler := NewSearchHandler(services.NewSearchService(serving, 100))

	app := fiber.New()
	app.Get("/", handler.Lookup)
	app.Get("/search", handler.Search)
	return app
}

func doGet(t *testing.T, app *fiber.App, target string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var parsed map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &parsed))
	return resp, parsed
}

func testRecord(id, institution, region, date string) models.MaskedDisclosureRecord {
	return models.MaskedDisclosureRecord{
		DisclosureID:    id,
		InstitutionName: institution,
		ReportingRegion: region,
		TransactionDate: date,
		SSNMasked:       "***-**-6789",
		EmailMasked:     "j***@example.com",
		HashID:          "hash-" + id,
	}
}

func TestLookupWithoutParameters(t *testing.T) {
	app := newSearchApp(t, testRecord("d-1", "Acme", "2ND", "2024-03-01"))

	resp, body := doGet(t, app, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0", string(body["count"]))
	assert.Equal(t, "[]", string(body["items"]))
	assert.NotContains(t, body, "next_token")
}

func TestLookupByInstitution(t *testing.T) {
	app := newSearchApp(t,
		testRecord("d-1", "Acme", "2ND", "2024-03-01"),
		testRecord("d-2", "Pacific", "9TH", "2024-03-02"),
	)

	resp, body := doGet(t, app, "/?institution=Acme")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", string(body["count"]))

	var items []models.MaskedDisclosureRecord
	require.NoError(t, json.Unmarshal(body["items"], &items))
	require.Len(t, items, 1)
	assert.Equal(t, "d-1", items[0].DisclosureID)
	assert.Equal(t, "***-**-6789", items[0].SSNMasked)
}

func TestLookupRejectsMalformedDate(t *testing.T) {
	app := newSearchApp(t)

	resp, body := doGet(t, app, "/?institution=Acme&date=03/01/2024")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body["error"]), "YYYY-MM-DD")
}

func TestSearchByID(t *testing.T) {
	app := newSearchApp(t, testRecord("d-1", "Acme", "2ND", "2024-03-01"))

	resp, body := doGet(t, app, "/search?id=d-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", string(body["count"]))

	resp, body = doGet(t, app, "/search?id=d-404")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0", string(body["count"]))
}

func TestSearchByRegion(t *testing.T) {
	app := newSearchApp(t,
		testRecord("d-1", "Acme", "2ND", "2024-03-01"),
		testRecord("d-2", "Pacific", "9TH", "2024-03-02"),
	)

	resp, body := doGet(t, app, "/search?region=9TH")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", string(body["count"]))
}

func TestSearchRejectsNegativeLimit(t *testing.T) {
	app := newSearchApp(t)

	resp, body := doGet(t, app, "/search?institution=Acme&limit=-1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body["error"]), "limit")
}

func TestSearchRejectsInvalidToken(t *testing.T) {
	app := newSearchApp(t)

	resp, body := doGet(t, app, "/search?institution=Acme&next=not-a-token")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body["error"]), "token")
}

func TestSearchMapsTransientBackendFailureTo503(t *testing.T) {
	serving := store.NewInMemory()
	serving.FailRead = func() error {
		return errors.New("connection refused")
	}

	handler := NewSearchHandler(services.NewSearchService(serving, 100))
	app := fiber.New()
	app.Get("/search", handler.Search)

	req := httptest.NewRequest(http.MethodGet, "/search?institution=Acme", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "temporarily unavailable")
}

func TestSearchPaginationTokenRoundTrip(t *testing.T) {
	app := newSearchApp(t,
		testRecord("d-1", "Acme", "2ND", "2024-03-01"),
		testRecord("d-2", "Acme", "2ND", "2024-03-02"),
		testRecord("d-3", "Acme", "2ND", "2024-03-03"),
	)

	resp, body := doGet(t, app, "/search?institution=Acme&limit=2")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2", string(body["count"]))

	var token string
	require.NoError(t, json.Unmarshal(body["next_token"], &token))
	require.NotEmpty(t, token)

	resp, body = doGet(t, app, "/search?institution=Acme&limit=2&next="+token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", string(body["count"]))
	assert.NotContains(t, body, "next_token")
}
