package jobs

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/opendisclosures/disclosure-backend/config"
	"github.com/opendisclosures/disclosure-backend/models"
	"github.com/opendisclosures/disclosure-backend/services"
)

// IngestListenerJob pulls object finalize notifications from a Pub/Sub
// subscription and runs an ingest batch for each raw object. It is the
// pull-based alternative to the push endpoint for deployments without a
// public HTTP surface.
type IngestListenerJob struct {
	Service      *services.IngestService
	ProjectID    string
	Subscription string
	RawPrefix    string
}

func NewIngestListenerJob(service *services.IngestService, cfg *config.Config) *IngestListenerJob {
	return &IngestListenerJob{
		Service:      service,
		ProjectID:    cfg.PubSubProjectID,
		Subscription: cfg.PubSubSubscription,
		RawPrefix:    cfg.RawPrefix,
	}
}

func newPubSubClient(ctx context.Context, projectID string) (*pubsub.Client, error) {
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
	}
	// Uses Application Default Credentials.
	return pubsub.NewClient(ctx, projectID)
}

// Start blocks receiving messages until ctx is cancelled.
func (j *IngestListenerJob) Start(ctx context.Context) error {
	client, err := newPubSubClient(ctx, j.ProjectID)
	if err != nil {
		return err
	}
	defer client.Close()

	sub := client.Subscription(j.Subscription)
	// Ingest runs are batch-heavy, keep concurrency low.
	sub.ReceiveSettings.MaxOutstandingMessages = 2

	logrus.WithFields(logrus.Fields{
		"component":    "IngestListenerJob",
		"subscription": j.Subscription,
	}).Info("Listening for object notifications")

	return sub.Receive(ctx, j.handleMessage)
}

func (j *IngestListenerJob) handleMessage(ctx context.Context, msg *pubsub.Message) {
	var event models.ObjectCreatedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil || event.Bucket == "" || event.Name == "" {
		logrus.WithFields(logrus.Fields{
			"component":  "IngestListenerJob",
			"message_id": msg.ID,
		}).Warn("Dropping notification that is not an object event")
		msg.Ack()
		return
	}

	if j.RawPrefix != "" && !strings.HasPrefix(event.Name, j.RawPrefix) {
		msg.Ack()
		return
	}

	report, err := j.Service.ProcessObject(ctx, event.Bucket, event.Name)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "IngestListenerJob",
			"bucket":    event.Bucket,
			"object":    event.Name,
			"error":     err.Error(),
		}).Error("Ingest run failed, message will be redelivered")
		msg.Nack()
		return
	}

	logrus.WithFields(logrus.Fields{
		"component":     "IngestListenerJob",
		"object":        event.Name,
		"total_records": report.TotalRecords,
		"persisted":     report.PersistedRecords,
		"quarantined":   report.QuarantinedCount,
	}).Info("Ingest run completed")
	msg.Ack()
}
