package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"threestep-go/internal/client"
	"threestep-go/internal/config"
	"threestep-go/internal/model"
	"threestep-go/internal/service"
)

// RunRequest is the body of POST /api/v1/run.
type RunRequest struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	TLS         bool   `json:"tls"`
	Request     string `json:"request"`
	FetchResult bool   `json:"fetch_result"`
}

// RunResponse is returned by a successful run. Request is the result-polling
// request; Response is only set when the caller asked for it to be sent.
type RunResponse struct {
	RunID      string       `json:"run_id"`
	Target     model.Target `json:"target"`
	Request    string       `json:"request"`
	StatusCode int          `json:"status_code,omitempty"`
	Response   string       `json:"response,omitempty"`
}

// RunHandler triggers orchestration runs.
type RunHandler struct {
	orchestrator *service.Orchestrator
	fallback     model.Target
	logger       *slog.Logger
}

// NewRunHandler creates a RunHandler. Runs without an explicit host go to the [target] table.
func NewRunHandler(o *service.Orchestrator, cfg *config.Config, logger *slog.Logger) *RunHandler {
	return &RunHandler{
		orchestrator: o,
		fallback: model.Target{
			Host: cfg.Target.Host,
			Port: cfg.Target.Port,
			TLS:  cfg.Target.TLS,
		},
		logger: logger.With("component", "run_handler"),
	}
}

// Handle runs the three-step exchange for the posted request and returns the
// result-polling request, optionally with its response.
func (h *RunHandler) Handle(c echo.Context) error {
	var body RunRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid JSON body",
		})
	}
	if body.Request == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "request is required",
		})
	}

	raw := []byte(body.Request)
	target, err := service.ResolveTarget(model.Target{Host: body.Host, Port: body.Port, TLS: body.TLS}, h.fallback, raw)
	if err != nil {
		return h.mapError(c, err)
	}

	runID := c.Response().Header().Get(echo.HeaderXRequestID)
	if runID == "" {
		runID = uuid.NewString()
	}

	ctx := c.Request().Context()
	result, err := h.orchestrator.Run(ctx, runID, &model.Message{Service: target, Request: raw})
	if err != nil {
		return h.mapError(c, err)
	}

	out := RunResponse{
		RunID:   runID,
		Target:  target,
		Request: result.String(),
	}

	if body.FetchResult {
		resp, err := h.orchestrator.FetchResult(ctx, target, result)
		if err != nil {
			return h.mapError(c, err)
		}
		out.StatusCode = resp.StatusCode()
		out.Response = string(resp.Raw)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *RunHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("run error",
		"err", err,
		"path", c.Request().URL.Path,
	)

	switch {
	case errors.Is(err, service.ErrNoTarget), errors.Is(err, service.ErrInvalidRequest):
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	case errors.Is(err, service.ErrTokenParse):
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{
			"error": "could not parse token from target response",
		})
	case errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "target request timed out",
		})
	case errors.Is(err, context.Canceled):
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "client disconnected",
		})
	case errors.Is(err, client.ErrResponseTooLarge):
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "target response exceeds upstream.max_response_bytes",
		})
	case errors.Is(err, service.ErrNoTokenResponse):
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "no response to token request",
		})
	case errors.Is(err, service.ErrNoOriginalResponse):
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "no response to original request",
		})
	case errors.Is(err, service.ErrNoResultResponse):
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "no response to result request",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "target request failed",
	})
}
