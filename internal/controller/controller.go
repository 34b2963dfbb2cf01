package controller

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"phospho/internal/api"
	"phospho/internal/dashboard"
	"phospho/internal/query"
	"phospho/internal/service"
)

type QueryController interface {
	GetCatalog(c *fiber.Ctx) error
	ValidateQuery(c *fiber.Ctx) error
	ApplyActions(c *fiber.Ctx) error
	TileName(c *fiber.Ctx) error
	RunPivot(c *fiber.Ctx) error
	ListTiles(c *fiber.Ctx) error
	AddTile(c *fiber.Ctx) error
	RemoveTile(c *fiber.Ctx) error
}

// queryController exposes the analytics query model over HTTP.
type queryController struct {
	analytics service.AnalyticsService
}

// NewQueryController builds a QueryController.
func NewQueryController(svc service.AnalyticsService) QueryController {
	return &queryController{analytics: svc}
}

// GetCatalog returns the selectable fields of every collection.
func (h *queryController) GetCatalog(c *fiber.Ctx) error {
	projectID, err := projectParam(c)
	if err != nil {
		return err
	}

	resp, svcErr := h.analytics.Catalog(c.UserContext(), projectID)
	if svcErr != nil {
		return writeError(c, svcErr)
	}
	return c.JSON(resp)
}

// ValidateQuery checks a query and chart type without running them.
func (h *queryController) ValidateQuery(c *fiber.Ctx) error {
	var req service.QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json payload")
	}

	if err := h.analytics.Validate(c.UserContext(), req); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"valid": true})
}

// ApplyActions runs editor actions on a query and returns the result.
func (h *queryController) ApplyActions(c *fiber.Ctx) error {
	var req service.ApplyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json payload")
	}

	resp, err := h.analytics.Apply(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(resp)
}

// TileName previews the name a tile would get.
func (h *queryController) TileName(c *fiber.Ctx) error {
	var req service.QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json payload")
	}
	return c.JSON(fiber.Map{"tile_name": h.analytics.TileName(req)})
}

// RunPivot executes a query for the project in the path.
func (h *queryController) RunPivot(c *fiber.Ctx) error {
	req, err := projectQuery(c)
	if err != nil {
		return err
	}

	result, svcErr := h.analytics.Run(c.UserContext(), req)
	if svcErr != nil {
		return writeError(c, svcErr)
	}
	return c.JSON(result)
}

// ListTiles returns the dashboard tiles of a project.
func (h *queryController) ListTiles(c *fiber.Ctx) error {
	projectID, err := projectParam(c)
	if err != nil {
		return err
	}

	tiles, svcErr := h.analytics.ListTiles(c.UserContext(), projectID)
	if svcErr != nil {
		return writeError(c, svcErr)
	}
	return c.JSON(tiles)
}

// AddTile saves a query as a new dashboard tile.
func (h *queryController) AddTile(c *fiber.Ctx) error {
	req, err := projectQuery(c)
	if err != nil {
		return err
	}

	tile, svcErr := h.analytics.AddTile(c.UserContext(), req)
	if svcErr != nil {
		return writeError(c, svcErr)
	}
	return c.Status(fiber.StatusCreated).JSON(tile)
}

// RemoveTile deletes a dashboard tile by position.
func (h *queryController) RemoveTile(c *fiber.Ctx) error {
	projectID, err := projectParam(c)
	if err != nil {
		return err
	}

	index, parseErr := strconv.Atoi(c.Params("index"))
	if parseErr != nil || index < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid tile index")
	}

	if svcErr := h.analytics.RemoveTile(c.UserContext(), projectID, index); svcErr != nil {
		return writeError(c, svcErr)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func projectParam(c *fiber.Ctx) (string, error) {
	// Params alias the request buffer; the ID outlives the request as a cache key
	projectID := utils.CopyString(utils.Trim(c.Params("project_id"), ' '))
	if projectID == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "project_id is required")
	}
	return projectID, nil
}

// projectQuery parses a query body and pins it to the project in the path
func projectQuery(c *fiber.Ctx) (service.QueryRequest, error) {
	projectID, err := projectParam(c)
	if err != nil {
		return service.QueryRequest{}, err
	}

	var req service.QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return service.QueryRequest{}, fiber.NewError(fiber.StatusBadRequest, "invalid json payload")
	}
	req.Query.ProjectID = projectID
	return req, nil
}

// writeError maps service errors to responses. Refused queries are the
// caller's fault; everything else failed on the way to the backend.
func writeError(c *fiber.Ctx, err error) error {
	var validationErr *query.ValidationError
	if errors.As(err, &validationErr) {
		body := fiber.Map{
			"error": validationErr.Error(),
			"kind":  validationErr.KindName(),
			"field": validationErr.Field,
		}
		var actionErr *query.ActionError
		if errors.As(err, &actionErr) {
			body["action_index"] = actionErr.Index
		}
		return c.Status(fiber.StatusBadRequest).JSON(body)
	}

	switch {
	case errors.Is(err, dashboard.ErrTileNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, dashboard.ErrConcurrentModification):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}

	body := fiber.Map{"error": err.Error()}
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		body["backend_status"] = statusErr.StatusCode
	}
	return c.Status(fiber.StatusBadGateway).JSON(body)
}
