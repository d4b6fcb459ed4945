// Package server wires the HTTP surface: REST routes under /api/v1,
// the health probe and the Prometheus endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/hrygo/sidekick/ai/metrics"
	"github.com/hrygo/sidekick/internal/profile"
	apiv1 "github.com/hrygo/sidekick/server/router/api/v1"
)

type Server struct {
	Profile *profile.Profile

	echoServer *echo.Echo
	apiV1      *apiv1.APIV1Service
}

func NewServer(_ context.Context, instanceProfile *profile.Profile, api *apiv1.APIV1Service) (*Server, error) {
	e := echo.New()
	e.Debug = instanceProfile.IsDev()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(requestLogger())
	e.Use(middleware.RateLimiter(
		middleware.NewRateLimiterMemoryStore(rate.Limit(30)),
	))

	s := &Server{
		Profile:    instanceProfile,
		echoServer: e,
		apiV1:      api,
	}

	e.GET("/health", s.healthHandler)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	api.Register(e)

	return s, nil
}

func (s *Server) Start(_ context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	return s.echoServer.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	slog.Info("sidekick stopped properly")
}

type healthResponse struct {
	Status            string `json:"status"`
	LLMLoaded         bool   `json:"llm_loaded"`
	VectorDBConnected bool   `json:"vector_db_connected"`
}

// healthHandler reports degraded gateways without failing the probe. A chat
// backend with a cold model host is still serving HTTP.
func (s *Server) healthHandler(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "healthy"}
	if s.apiV1.LLM != nil {
		resp.LLMLoaded = s.apiV1.LLM.Ping(ctx) == nil
	}
	if s.apiV1.VectorStore != nil {
		resp.VectorDBConnected = s.apiV1.VectorStore.Connected()
	}
	return c.JSON(http.StatusOK, resp)
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			if v.Status >= http.StatusInternalServerError {
				slog.Error("request failed",
					"method", v.Method, "uri", v.URI,
					"status", v.Status, "latency", v.Latency)
			} else {
				slog.Debug("request",
					"method", v.Method, "uri", v.URI,
					"status", v.Status, "latency", v.Latency)
			}
			return nil
		},
	})
}
