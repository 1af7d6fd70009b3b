package models

import (
	"time"

	"github.com/google/uuid"
)

// ObjectCreatedEvent references a newly created input object. One ingestion
// run is triggered per object creation.
type ObjectCreatedEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// PubSubPushEnvelope is the wrapper Pub/Sub push delivery puts around a
// storage notification. Message.Data is the base64-encoded notification
// payload.
type PubSubPushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// IngestReport summarizes one ingestion run. FailedDisclosureIDs lists the
// records that could not be persisted after retries were exhausted;
// everything else in the run completed.
type IngestReport struct {
	RunID             uuid.UUID     `json:"run_id"`
	Bucket            string        `json:"bucket"`
	ObjectKey         string        `json:"object_key"`
	TotalRecords      int           `json:"total_records"`
	ValidRecords      int           `json:"valid_records"`
	QuarantinedCount  int           `json:"quarantined_count"`
	PersistedRecords  int           `json:"persisted_records"`
	FailedDisclosures []string      `json:"failed_disclosure_ids,omitempty"`
	CuratedKey        string        `json:"curated_key,omitempty"`
	QuarantineKey     string        `json:"quarantine_key,omitempty"`
	Duration          time.Duration `json:"duration_ns"`
}
