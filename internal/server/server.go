package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"phospho/internal/controller"
)

// Server wraps the Fiber application setup.
type Server struct {
	app *fiber.App
}

// NewServer configures routes and middleware.
func NewServer(queryController controller.QueryController) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		Immutable:             true,
	})
	app.Use(recover.New())

	Register(app, queryController)

	return &Server{app: app}
}

// App exposes the Fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen runs the server on provided addr until ctx is done.
func (s *Server) Listen(ctx context.Context, addr string) error {
	go func() {
		<-ctx.Done()
		_ = s.app.Shutdown()
	}()
	return s.app.Listen(addr)
}
