package handlers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/opendisclosures/disclosure-backend/models"
	"github.com/opendisclosures/disclosure-backend/services"
	"github.com/opendisclosures/disclosure-backend/shared"
)

type SearchHandler struct {
	Service  *services.SearchService
	validate *validator.Validate
}

func NewSearchHandler(service *services.SearchService) *SearchHandler {
	return &SearchHandler{
		Service:  service,
		validate: validator.New(),
	}
}

// lookupRequest is the parameter set of the root lookup endpoint, which
// only supports institution-scoped reads.
type lookupRequest struct {
	Institution string `query:"institution"`
	Date        string `query:"date" validate:"omitempty,datetime=2006-01-02"`
	Limit       int    `query:"limit" validate:"omitempty,gte=1"`
}

// searchRequest is the full parameter set of the search endpoint.
type searchRequest struct {
	ID          string `query:"id"`
	Institution string `query:"institution"`
	Region      string `query:"region"`
	Date        string `query:"date" validate:"omitempty,datetime=2006-01-02"`
	Contains    string `query:"contains"`
	Limit       int    `query:"limit" validate:"omitempty,gte=1"`
	Next        string `query:"next"`
}

// Lookup handles GET /. A request without parameters is valid and returns
// an empty result set.
func (h *SearchHandler) Lookup(c *fiber.Ctx) error {
	var req lookupRequest
	if err := c.QueryParser(&req); err != nil {
		return badRequest(c, "malformed query parameters")
	}
	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, validationMessage(err))
	}

	return h.run(c, models.SearchQuery{
		Institution: req.Institution,
		Date:        req.Date,
		Limit:       req.Limit,
	})
}

// Search handles GET /search across all supported parameters.
func (h *SearchHandler) Search(c *fiber.Ctx) error {
	var req searchRequest
	if err := c.QueryParser(&req); err != nil {
		return badRequest(c, "malformed query parameters")
	}
	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, validationMessage(err))
	}

	return h.run(c, models.SearchQuery{
		DisclosureID: req.ID,
		Institution:  req.Institution,
		Region:       req.Region,
		Date:         req.Date,
		Contains:     req.Contains,
		Limit:        req.Limit,
		PageToken:    req.Next,
	})
}

func (h *SearchHandler) run(c *fiber.Ctx, query models.SearchQuery) error {
	result, err := h.Service.Search(c.Context(), query)
	if err != nil {
		return searchError(c, err)
	}
	return c.JSON(result)
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": message,
	})
}

// validationMessage flattens the first field violation into a client-facing
// message instead of the raw validator error chain.
func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		switch fe.Tag() {
		case "datetime":
			return "date must be formatted as YYYY-MM-DD"
		case "gte":
			return "limit must be a positive integer"
		}
		return "invalid parameter: " + fe.Field()
	}
	return "invalid query parameters"
}

func searchError(c *fiber.Ctx, err error) error {
	var svcErr *shared.ServiceError
	if errors.As(err, &svcErr) {
		switch {
		case svcErr.Category == shared.ErrorCategoryRequest:
			return badRequest(c, svcErr.Message)
		case svcErr.Retryable:
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "backend temporarily unavailable",
			})
		}
	}

	logrus.WithFields(logrus.Fields{
		"component": "SearchHandler",
		"error":     err.Error(),
	}).Error("Search request failed")

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal server error",
	})
}
