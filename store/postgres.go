package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opendisclosures/disclosure-backend/models"
)

const selectColumns = `disclosure_id, institution_name, reporting_region, transaction_date,
	       ssn_masked, email_masked, hash_id, extra`

// Postgres implements ServingStore on a disclosures table with composite
// (institution_name, transaction_date) and (reporting_region,
// transaction_date) indexes.
type Postgres struct {
	DB *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{DB: db}
}

// PutBatch upserts each record keyed on disclosure_id. Failed ids are
// returned for the caller's retry loop; successes are kept regardless of
// later failures in the same batch.
func (s *Postgres) PutBatch(ctx context.Context, records []models.MaskedDisclosureRecord) ([]string, error) {
	query := `
		INSERT INTO disclosures (
			disclosure_id, institution_name, reporting_region, transaction_date,
			ssn_masked, email_masked, hash_id, extra, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (disclosure_id) DO UPDATE SET
			institution_name = EXCLUDED.institution_name,
			reporting_region = EXCLUDED.reporting_region,
			transaction_date = EXCLUDED.transaction_date,
			ssn_masked = EXCLUDED.ssn_masked,
			email_masked = EXCLUDED.email_masked,
			hash_id = EXCLUDED.hash_id,
			extra = EXCLUDED.extra,
			updated_at = NOW()
	`

	var unprocessed []string
	for i := range records {
		rec := &records[i]

		extra := []byte("{}")
		if len(rec.Extra) > 0 {
			if data, err := json.Marshal(rec.Extra); err == nil {
				extra = data
			}
		}

		if _, err := s.DB.ExecContext(ctx, query,
			rec.DisclosureID, rec.InstitutionName, rec.ReportingRegion, rec.TransactionDate,
			rec.SSNMasked, rec.EmailMasked, rec.HashID, extra,
		); err != nil {
			if ctx.Err() != nil {
				return append(unprocessed, idsFrom(records[i:])...), ctx.Err()
			}

			logrus.WithFields(logrus.Fields{
				"component":     "PostgresStore",
				"disclosure_id": rec.DisclosureID,
				"error":         err,
			}).Warn("Failed to upsert disclosure record")
			unprocessed = append(unprocessed, rec.DisclosureID)
		}
	}

	return unprocessed, nil
}

// Get returns the record for a disclosure id, or ErrNotFound.
func (s *Postgres) Get(ctx context.Context, disclosureID string) (*models.MaskedDisclosureRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM disclosures WHERE disclosure_id = $1`

	rec, err := scanRecord(s.DB.QueryRowContext(ctx, query, disclosureID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get disclosure %s: %w", disclosureID, err)
	}
	return rec, nil
}

// QueryByIndex runs an equality/range query over one of the composite
// indexes, in (transaction_date, disclosure_id) order.
func (s *Postgres) QueryByIndex(ctx context.Context, q Query) (*Page, error) {
	var partitionColumn string
	switch q.Index {
	case IndexInstitutionDate:
		partitionColumn = "institution_name"
	case IndexRegionDate:
		partitionColumn = "reporting_region"
	default:
		return nil, fmt.Errorf("unknown index %q", q.Index)
	}

	where := fmt.Sprintf("%s = $1", partitionColumn)
	args := []interface{}{q.Partition}

	if q.DateEquals != "" {
		args = append(args, q.DateEquals)
		where += fmt.Sprintf(" AND transaction_date = $%d", len(args))
	}

	return s.queryPage(ctx, where, args, q)
}

// ScanWithFilter walks the whole table in order, applying q.Filter
// incrementally so q.Limit counts post-filter matches.
func (s *Postgres) ScanWithFilter(ctx context.Context, q Query) (*Page, error) {
	return s.queryPage(ctx, "TRUE", nil, q)
}

func (s *Postgres) queryPage(ctx context.Context, where string, args []interface{}, q Query) (*Page, error) {
	if q.After != nil {
		args = append(args, q.After.TransactionDate, q.After.DisclosureID)
		where += fmt.Sprintf(" AND (transaction_date, disclosure_id) > ($%d, $%d)", len(args)-1, len(args))
	}

	query := fmt.Sprintf(`SELECT %s FROM disclosures WHERE %s ORDER BY transaction_date, disclosure_id`,
		selectColumns, where)

	// Without a client-side filter one extra row is enough to detect more
	// data; with a filter rows are read until enough matches accumulate.
	if q.Filter == nil && q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit+1)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query disclosures: %w", err)
	}
	defer rows.Close()

	page := &Page{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan disclosure row: %w", err)
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

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate disclosures: %w", err)
	}
	return page, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.MaskedDisclosureRecord, error) {
	var rec models.MaskedDisclosureRecord
	var extra []byte

	if err := row.Scan(
		&rec.DisclosureID, &rec.InstitutionName, &rec.ReportingRegion, &rec.TransactionDate,
		&rec.SSNMasked, &rec.EmailMasked, &rec.HashID, &extra,
	); err != nil {
		return nil, err
	}

	if len(extra) > 0 && string(extra) != "{}" {
		if err := json.Unmarshal(extra, &rec.Extra); err != nil {
			return nil, fmt.Errorf("decode extra fields for %s: %w", rec.DisclosureID, err)
		}
	}
	return &rec, nil
}

func idsFrom(records []models.MaskedDisclosureRecord) []string {
	ids := make([]string, 0, len(records))
	for i := range records {
		ids = append(ids, records[i].DisclosureID)
	}
	return ids
}
