package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"threestep-go/internal/config"
)

// Names under which the action is offered to callers.
const (
	ExtensionName = "3stepRequest"
	ActionName    = "3 step request with token"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// StatusResponse describes the running service.
type StatusResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Extension     string `json:"extension"`
	Action        string `json:"action"`
	EndpointPath  string `json:"endpoint_path"`
	DefaultTarget string `json:"default_target,omitempty"`
}

// Status returns service status information.
func (h *HealthHandler) Status(c echo.Context) error {
	resp := StatusResponse{
		Status:       "ok",
		Version:      string(h.version),
		Extension:    ExtensionName,
		Action:       ActionName,
		EndpointPath: h.cfg.Protocol.EndpointPath,
	}
	if h.cfg.Target.Host != "" {
		resp.DefaultTarget = h.cfg.Target.Host
	}
	return c.JSON(http.StatusOK, resp)
}
