package webserver

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/prixcenter/wlink/config"
)

// WebServer wraps the echo engine. Routes register through the
// package-level helpers so handler packages never hold the engine.
type WebServer struct {
	root *echo.Echo
	api  *echo.Group
	cfg  *config.AppConfig
}

var server *WebServer

// Init builds the engine with logging, recovery and per-request
// injection of the database handle (nil when running on the in-memory
// store).
func Init(cfg *config.AppConfig, db *gorm.DB) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(requestLogger())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("db", db)
			return next(c)
		}
	})

	server = &WebServer{
		root: e,
		api:  e.Group("/api"),
		cfg:  cfg,
	}
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			req := c.Request()
			zap.L().Info("http request",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote", c.RealIP()),
			)
			return err
		}
	}
}

// Listen blocks serving HTTP on the configured host and port.
func Listen() error {
	return server.root.Start(fmt.Sprintf("%s:%d", server.cfg.Web.Host, server.cfg.Web.Port))
}

func ApiGET(path string, h echo.HandlerFunc)    { server.api.GET(path, h) }
func ApiPOST(path string, h echo.HandlerFunc)   { server.api.POST(path, h) }
func ApiPUT(path string, h echo.HandlerFunc)    { server.api.PUT(path, h) }
func ApiDELETE(path string, h echo.HandlerFunc) { server.api.DELETE(path, h) }

func PubGET(path string, h echo.HandlerFunc)  { server.root.GET(path, h) }
func PubPOST(path string, h echo.HandlerFunc) { server.root.POST(path, h) }
