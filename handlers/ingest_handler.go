package handlers

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/opendisclosures/disclosure-backend/models"
	"github.com/opendisclosures/disclosure-backend/services"
)

type IngestHandler struct {
	Service   *services.IngestService
	RawPrefix string
}

func NewIngestHandler(service *services.IngestService, rawPrefix string) *IngestHandler {
	return &IngestHandler{
		Service:   service,
		RawPrefix: rawPrefix,
	}
}

// HandlePushEvent handles POST /events/ingest, the Pub/Sub push endpoint
// for object finalize notifications. Notifications outside the raw prefix
// are acknowledged without processing so the subscription does not
// redeliver them.
func (h *IngestHandler) HandlePushEvent(c *fiber.Ctx) error {
	var envelope models.PubSubPushEnvelope
	if err := json.Unmarshal(c.Body(), &envelope); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed push envelope",
		})
	}

	var event models.ObjectCreatedEvent
	if err := json.Unmarshal(envelope.Message.Data, &event); err != nil || event.Bucket == "" || event.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "notification payload is not an object event",
		})
	}

	if h.RawPrefix != "" && !strings.HasPrefix(event.Name, h.RawPrefix) {
		logrus.WithFields(logrus.Fields{
			"component": "IngestHandler",
			"object":    event.Name,
		}).Debug("Skipping notification outside raw prefix")
		return c.JSON(fiber.Map{
			"skipped": true,
			"object":  event.Name,
		})
	}

	return h.process(c, event.Bucket, event.Name)
}

// manualIngestRequest is the body of the admin trigger endpoint.
type manualIngestRequest struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// TriggerIngest handles POST /api/v1/admin/ingest for manual reprocessing
// of a specific raw object.
func (h *IngestHandler) TriggerIngest(c *fiber.Ctx) error {
	var req manualIngestRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.Bucket == "" || req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bucket and name are required",
		})
	}

	return h.process(c, req.Bucket, req.Name)
}

func (h *IngestHandler) process(c *fiber.Ctx, bucket, name string) error {
	report, err := h.Service.ProcessObject(c.Context(), bucket, name)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "IngestHandler",
			"bucket":    bucket,
			"object":    name,
			"error":     err.Error(),
		}).Error("Ingest run failed")

		body := fiber.Map{"error": err.Error()}
		if report != nil {
			body["report"] = report
		}
		return c.Status(fiber.StatusInternalServerError).JSON(body)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"report":  report,
	})
}
