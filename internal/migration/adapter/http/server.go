package http

import (
	"context"
	"errors"
	"net"

	"cosmo-migrator/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
)

// Server runs the status endpoints on their own fiber app.
type Server struct {
	app  *fiber.App
	addr string
	log  logger.Logger
}

// NewServer mounts handler on a new app listening on addr.
func NewServer(addr string, handler *StatusHandler, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNopLogger()
	}
	app := fiber.New(fiber.Config{
		AppName:               "cosmo-migrator",
		DisableStartupMessage: true,
	})
	handler.RegisterRoutes(app)
	return &Server{app: app, addr: addr, log: log.WithComponent("status-server")}
}

// App exposes the fiber app, mostly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Start listens in the background and returns the bound address.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", err
	}
	go func() {
		err := s.app.Listener(ln)
		if err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Errorf("status server stopped: %v", err)
		}
	}()
	s.log.Infof("status server listening on %s", ln.Addr())
	return ln.Addr().String(), nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
