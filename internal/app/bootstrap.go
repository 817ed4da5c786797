package app

import (
	"fmt"
	"log"
	"strings"

	"grid-pulse/internal/config"
	"grid-pulse/internal/delivery/http/handler"
	"grid-pulse/internal/delivery/http/middleware"
	"grid-pulse/internal/delivery/http/routes"
	"grid-pulse/internal/pkg/jwt"
	"grid-pulse/internal/ws"

	"github.com/gofiber/fiber/v3"
)

type App struct {
	Fiber     *fiber.App
	Container *Container
}

func Bootstrap(cfg config.Config) (*App, func() error, error) {
	c, err := NewContainer(cfg)
	if err != nil {
		return nil, nil, err
	}

	f := fiber.New(fiber.Config{AppName: cfg.App.AppName})
	registerGlobalMiddleware(f)
	registerRoutes(f, c)

	cleanup := func() error {
		c.StopBackground()
		return c.Close()
	}
	return &App{Fiber: f, Container: c}, cleanup, nil
}

func registerGlobalMiddleware(f *fiber.App) {
	if f == nil {
		return
	}
	f.Use(middleware.NewErrorMiddleware().Middleware())
	f.Use(middleware.NewAccessLogMiddleware(log.Default()).Middleware())
}

func registerRoutes(f *fiber.App, c *Container) {
	if f == nil || c == nil {
		return
	}

	var jwtSvc jwt.Service
	if secret := strings.TrimSpace(c.Config.Monitoring.JWTSecret); secret != "" {
		jwtSvc = jwt.NewHMACService(secret)
	}

	registry := routes.NewRegistry(
		handler.NewHealthHandler(c.Config.App.AppName, c.Config.App.Environment),
		handler.NewMonitoringHandler(c.StatusCache, c.History, log.Default()),
		ws.NewHandler(c.Hub, log.Default()),
		middleware.NewAuthMiddleware(jwtSvc),
	)
	registry.Register(f)
}

func ListenAddr(port string) (string, error) {
	p := strings.TrimSpace(port)
	if p == "" {
		return "", fmt.Errorf("empty HTTP port")
	}
	if strings.HasPrefix(p, ":") {
		return p, nil
	}
	return ":" + p, nil
}
