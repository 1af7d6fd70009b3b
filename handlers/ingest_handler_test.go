package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendisclosures/disclosure-backend/config"
	"github.com/opendisclosures/disclosure-backend/objectstore"
	"github.com/opendisclosures/disclosure-backend/services"
	"github.com/opendisclosures/disclosure-backend/store"
)

const ingestCSV = `disclosure_id,institution_name,reporting_region,transaction_date,ssn,email
d-1,First National,2ND,2024-03-01,123-45-6789,jdoe@example.com
d-2,Pacific Trust,9TH,bad-date,987-65-4321,asmith@example.com
`

func newIngestApp(t *testing.T) (*fiber.App, *objectstore.InMemory, *store.InMemory) {
	t.Helper()

	objects := objectstore.NewInMemory()
	serving := store.NewInMemory()
	cfg := &config.Config{
		PIIHashSalt:      "unit-test-salt",
		RawPrefix:        "raw/",
		CuratedPrefix:    "curated/",
		QuarantinePrefix: "quarantine/",
		Batch: config.BatchConfig{
			BatchSize:      25,
			MaxRetries:     1,
			BaseRetryDelay: time.Millisecond,
			MaxRetryDelay:  time.Millisecond,
		},
	}

	svc := services.NewIngestService(objects, serving, services.NewMaskingEngine(cfg.PIIHashSalt), cfg)
	handler := NewIngestHandler(svc, cfg.RawPrefix)

	app := fiber.New()
	app.Post("/events/ingest", handler.HandlePushEvent)
	app.Post("/api/v1/admin/ingest", handler.TriggerIngest)
	return app, objects, serving
}

func pushEnvelope(t *testing.T, bucket, name string) []byte {
	t.Helper()

	event, err := json.Marshal(map[string]string{"bucket": bucket, "name": name})
	require.NoError(t, err)

	envelope := fmt.Sprintf(
		`{"message":{"data":%q,"messageId":"m-1"},"subscription":"projects/p/subscriptions/s"}`,
		base64.StdEncoding.EncodeToString(event),
	)
	return []byte(envelope)
}

func postJSON(t *testing.T, app *fiber.App, target string, body []byte) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var parsed map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &parsed))
	return resp, parsed
}

func TestHandlePushEventProcessesBatch(t *testing.T) {
	app, objects, serving := newIngestApp(t)
	require.NoError(t, objects.Put(context.Background(), "raw/batch_01.csv", []byte(ingestCSV), "text/csv"))

	resp, body := postJSON(t, app, "/events/ingest", pushEnvelope(t, "disclosures", "raw/batch_01.csv"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var report map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body["report"], &report))
	assert.Equal(t, "2", string(report["total_records"]))
	assert.Equal(t, "1", string(report["persisted_records"]))
	assert.Equal(t, "1", string(report["quarantined_count"]))

	assert.Equal(t, 1, serving.Len())
}

func TestHandlePushEventSkipsOutsideRawPrefix(t *testing.T) {
	app, _, serving := newIngestApp(t)

	resp, body := postJSON(t, app, "/events/ingest", pushEnvelope(t, "disclosures", "curated/masked_batch_01.jsonl"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", string(body["skipped"]))
	assert.Equal(t, 0, serving.Len())
}

func TestHandlePushEventRejectsMalformedEnvelope(t *testing.T) {
	app, _, _ := newIngestApp(t)

	resp, _ := postJSON(t, app, "/events/ingest", []byte(`{"message":{"data":"bm90LWpzb24="}}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTriggerIngestRequiresBucketAndName(t *testing.T) {
	app, _, _ := newIngestApp(t)

	resp, body := postJSON(t, app, "/api/v1/admin/ingest", []byte(`{"bucket":"disclosures"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body["error"]), "required")
}

func TestTriggerIngestRunsBatch(t *testing.T) {
	app, objects, serving := newIngestApp(t)
	require.NoError(t, objects.Put(context.Background(), "raw/batch_01.csv", []byte(ingestCSV), "text/csv"))

	resp, body := postJSON(t, app, "/api/v1/admin/ingest", []byte(`{"bucket":"disclosures","name":"raw/batch_01.csv"}`))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", string(body["success"]))
	assert.Equal(t, 1, serving.Len())
}

func TestTriggerIngestMissingObject(t *testing.T) {
	app, _, _ := newIngestApp(t)

	resp, body := postJSON(t, app, "/api/v1/admin/ingest", []byte(`{"bucket":"disclosures","name":"raw/nope.csv"}`))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}
