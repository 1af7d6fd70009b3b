package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opendisclosures/disclosure-backend/config"
	"github.com/opendisclosures/disclosure-backend/models"
	"github.com/opendisclosures/disclosure-backend/objectstore"
	"github.com/opendisclosures/disclosure-backend/shared"
	storepkg "github.com/opendisclosures/disclosure-backend/store"
)

// requiredColumns are the CSV columns every batch is expected to carry.
// Additional columns are passed through untouched.
var requiredColumns = []string{
	"disclosure_id", "institution_name", "reporting_region",
	"transaction_date", "ssn", "email",
}

// IngestService drives one input batch through validation, masking and
// routing, then persists the outputs. Each run is a stateless invocation:
// the only state the service carries is immutable configuration and the
// injected collaborators.
type IngestService struct {
	objects   objectstore.ObjectStore
	store     storepkg.ServingStore
	validator *RecordValidator
	masker    *MaskingEngine
	router    *RecordRouter

	batch            config.BatchConfig
	retry            shared.RetryPolicy
	curatedPrefix    string
	quarantinePrefix string

	metrics *shared.ServiceMetrics
}

func NewIngestService(objects objectstore.ObjectStore, store storepkg.ServingStore, masker *MaskingEngine, cfg *config.Config) *IngestService {
	return &IngestService{
		objects:          objects,
		store:            store,
		validator:        NewRecordValidator(),
		masker:           masker,
		router:           NewRecordRouter(),
		batch:            cfg.Batch,
		retry:            shared.NewRetryPolicy(cfg.Batch.MaxRetries, cfg.Batch.BaseRetryDelay, cfg.Batch.MaxRetryDelay),
		curatedPrefix:    cfg.CuratedPrefix,
		quarantinePrefix: cfg.QuarantinePrefix,
		metrics:          shared.NewServiceMetrics("ingest-service"),
	}
}

// Metrics exposes the service's request counters.
func (s *IngestService) Metrics() *shared.ServiceMetrics {
	return s.metrics
}

// ProcessObject runs one ingestion pass over the named input object.
// Unparseable input aborts before any record-level processing; per-record
// validation failures never abort the run. The run is safe to repeat:
// serving-store writes are idempotent overwrites keyed on disclosure_id.
func (s *IngestService) ProcessObject(ctx context.Context, bucket, key string) (*models.IngestReport, error) {
	start := time.Now()
	report := &models.IngestReport{
		RunID:     uuid.New(),
		Bucket:    bucket,
		ObjectKey: key,
	}

	logger := logrus.WithFields(logrus.Fields{
		"component":  "IngestService",
		"run_id":     report.RunID,
		"object_key": key,
	})
	logger.Info("Starting ingestion run")

	data, err := s.objects.Get(ctx, key)
	if err != nil {
		s.metrics.RecordRequest(false, time.Since(start))
		return nil, shared.WrapError(err, shared.ErrorCategoryStorage, "INPUT_FETCH_FAILED", "ingest-service", "ProcessObject", shared.IsRetryableError(err))
	}

	rawRecords, err := parseBatchCSV(data)
	if err != nil {
		s.metrics.RecordRequest(false, time.Since(start))
		return nil, shared.NewServiceError(shared.ErrorCategoryValidation, "MALFORMED_BATCH", err.Error(), "ingest-service", "ProcessObject", false, err)
	}
	report.TotalRecords = len(rawRecords)

	var masked []models.MaskedDisclosureRecord
	var quarantined []models.QuarantinedRecord

	for i := range rawRecords {
		raw := &rawRecords[i]

		valid, reason := s.validator.Validate(raw)
		var maskedRec *models.MaskedDisclosureRecord
		if valid {
			m := s.masker.Mask(raw)
			maskedRec = &m
		}

		routed := s.router.Route(raw, valid, reason, maskedRec)
		switch routed.Destination {
		case DestinationCurated:
			masked = append(masked, *routed.Masked)
		case DestinationQuarantine:
			quarantined = append(quarantined, *routed.Quarantined)
		}
	}
	report.ValidRecords = len(masked)
	report.QuarantinedCount = len(quarantined)

	// Object writes and serving-store writes are independent; a failure in
	// one never rolls back the other.
	var outputErrs []error

	if len(masked) > 0 {
		report.CuratedKey = s.curatedPrefix + "masked_" + batchBaseName(key) + ".jsonl"
		if err := s.writeJSONL(ctx, report.CuratedKey, maskedLines(masked)); err != nil {
			outputErrs = append(outputErrs, fmt.Errorf("curated output: %w", err))
			report.CuratedKey = ""
		}
	}

	if len(quarantined) > 0 {
		report.QuarantineKey = s.quarantinePrefix + "quarantine_" + batchBaseName(key) + ".jsonl"
		if err := s.writeJSONL(ctx, report.QuarantineKey, quarantineLines(quarantined)); err != nil {
			outputErrs = append(outputErrs, fmt.Errorf("quarantine output: %w", err))
			report.QuarantineKey = ""
		}
	}

	persisted, failed := s.persistBatches(ctx, masked)
	report.PersistedRecords = persisted
	report.FailedDisclosures = failed
	report.Duration = time.Since(start)

	logger.WithFields(logrus.Fields{
		"total_records":   report.TotalRecords,
		"valid_records":   report.ValidRecords,
		"quarantined":     report.QuarantinedCount,
		"persisted":       report.PersistedRecords,
		"failed_persists": len(report.FailedDisclosures),
		"duration":        report.Duration,
	}).Info("Ingestion run completed")

	success := len(outputErrs) == 0 && len(failed) == 0
	s.metrics.RecordRequest(success, time.Since(start))

	if len(outputErrs) > 0 {
		return report, shared.WrapError(outputErrs[0], shared.ErrorCategoryStorage, "OUTPUT_WRITE_FAILED", "ingest-service", "ProcessObject", true)
	}
	return report, nil
}

// persistBatches writes masked records to the serving store in bounded
// batches, retrying only the unprocessed subset of each batch with
// exponential backoff. Ids still unprocessed after the retry bound are
// returned; records already written stay written.
func (s *IngestService) persistBatches(ctx context.Context, records []models.MaskedDisclosureRecord) (int, []string) {
	persisted := 0
	var failed []string

	for offset := 0; offset < len(records); offset += s.batch.BatchSize {
		end := offset + s.batch.BatchSize
		if end > len(records) {
			end = len(records)
		}

		pending := records[offset:end]
		for attempt := 0; ; attempt++ {
			unprocessed, err := s.store.PutBatch(ctx, pending)
			if err != nil && !shared.IsRetryableError(err) {
				// Rows the store reported as written stay written; only
				// the unprocessed remainder is failed.
				if len(unprocessed) == 0 {
					unprocessed = idsOf(pending)
				}
				persisted += len(pending) - len(unprocessed)
				failed = append(failed, unprocessed...)

				logrus.WithFields(logrus.Fields{
					"component": "IngestService",
					"summary":   shared.BuildBatchErrorSummary(len(pending)-len(unprocessed), len(unprocessed), []error{err}),
				}).Error("Serving-store batch write failed permanently")
				break
			}
			if err != nil && len(unprocessed) == 0 {
				unprocessed = idsOf(pending)
			}

			persisted += len(pending) - len(unprocessed)
			if len(unprocessed) == 0 {
				break
			}

			if attempt >= s.batch.MaxRetries {
				failed = append(failed, unprocessed...)
				break
			}

			pending = subsetByID(pending, unprocessed)
			delay := s.retry.Backoff(attempt + 1)

			logrus.WithFields(logrus.Fields{
				"component":   "IngestService",
				"attempt":     attempt + 1,
				"unprocessed": len(unprocessed),
				"delay":       delay,
			}).Warn("Retrying unprocessed serving-store writes")

			select {
			case <-ctx.Done():
				return persisted, append(failed, unprocessed...)
			case <-time.After(delay):
			}
		}
	}

	return persisted, failed
}

func (s *IngestService) writeJSONL(ctx context.Context, key string, lines [][]byte) error {
	payload := bytes.Join(lines, []byte{'\n'})
	payload = append(payload, '\n')
	return s.objects.Put(ctx, key, payload, "application/x-ndjson")
}

// parseBatchCSV decodes a header-row CSV into raw records. Any CSV-level
// parse error is a run-level failure; missing required columns surface as
// empty fields and take the per-record quarantine path instead.
func parseBatchCSV(data []byte) ([]models.RawDisclosureRecord, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("unparseable CSV batch: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("unparseable CSV batch: missing header row")
	}

	header := rows[0]
	required := make(map[string]bool, len(requiredColumns))
	for _, col := range requiredColumns {
		required[col] = true
	}

	records := make([]models.RawDisclosureRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		fields := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				fields[col] = row[i]
			}
		}

		rec := models.RawDisclosureRecord{
			DisclosureID:    fields["disclosure_id"],
			InstitutionName: fields["institution_name"],
			ReportingRegion: fields["reporting_region"],
			TransactionDate: fields["transaction_date"],
			SSN:             fields["ssn"],
			Email:           fields["email"],
		}
		for col, value := range fields {
			if !required[col] {
				if rec.Extra == nil {
					rec.Extra = make(map[string]string)
				}
				rec.Extra[col] = value
			}
		}
		records = append(records, rec)
	}

	return records, nil
}

func maskedLines(records []models.MaskedDisclosureRecord) [][]byte {
	lines := make([][]byte, 0, len(records))
	for i := range records {
		line, _ := json.Marshal(&records[i])
		lines = append(lines, line)
	}
	return lines
}

func quarantineLines(records []models.QuarantinedRecord) [][]byte {
	lines := make([][]byte, 0, len(records))
	for i := range records {
		line, _ := json.Marshal(&records[i])
		lines = append(lines, line)
	}
	return lines
}

func batchBaseName(key string) string {
	return strings.TrimSuffix(path.Base(key), ".csv")
}

func idsOf(records []models.MaskedDisclosureRecord) []string {
	ids := make([]string, 0, len(records))
	for i := range records {
		ids = append(ids, records[i].DisclosureID)
	}
	return ids
}

func subsetByID(records []models.MaskedDisclosureRecord, ids []string) []models.MaskedDisclosureRecord {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	subset := make([]models.MaskedDisclosureRecord, 0, len(ids))
	for i := range records {
		if wanted[records[i].DisclosureID] {
			subset = append(subset, records[i])
		}
	}
	return subset
}
