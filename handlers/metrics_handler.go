package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/opendisclosures/disclosure-backend/services"
)

type MetricsHandler struct {
	Ingest *services.IngestService
	Search *services.SearchService
}

func NewMetricsHandler(ingest *services.IngestService, search *services.SearchService) *MetricsHandler {
	return &MetricsHandler{
		Ingest: ingest,
		Search: search,
	}
}

// GetServiceMetrics returns the current request counters for both services
func (h *MetricsHandler) GetServiceMetrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"ingest_service": fiber.Map{
				"counters":     h.Ingest.Metrics().Snapshot(),
				"success_rate": h.Ingest.Metrics().GetSuccessRate(),
			},
			"search_service": fiber.Map{
				"counters":     h.Search.Metrics().Snapshot(),
				"success_rate": h.Search.Metrics().GetSuccessRate(),
			},
		},
	})
}
