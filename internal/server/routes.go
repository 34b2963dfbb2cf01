package server

import (
	"github.com/gofiber/fiber/v2"

	"phospho/internal/controller"
)

// Register attaches all HTTP routes to the Fiber app.
func Register(app *fiber.App, queryController controller.QueryController) {
	app.Get("/catalog/:project_id", queryController.GetCatalog)

	queries := app.Group("/queries")
	queries.Post("/validate", queryController.ValidateQuery)
	queries.Post("/apply", queryController.ApplyActions)
	queries.Post("/name", queryController.TileName)

	projects := app.Group("/projects/:project_id")
	projects.Post("/pivot", queryController.RunPivot)
	projects.Get("/tiles", queryController.ListTiles)
	projects.Post("/tiles", queryController.AddTile)
	projects.Delete("/tiles/:index", queryController.RemoveTile)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
