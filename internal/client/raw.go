// Package client provides the raw-bytes HTTP transport to the target application.
package client

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"strconv"
	"time"

	"threestep-go/internal/config"
	"threestep-go/internal/metrics"
	"threestep-go/internal/model"
)

// ErrResponseTooLarge is returned when the target's response exceeds
// upstream.max_response_bytes. The response is discarded.
var ErrResponseTooLarge = errors.New("response exceeds upstream.max_response_bytes")

// RawClient writes raw request bytes to a target and reads back one raw response.
type RawClient struct {
	dialer           *net.Dialer
	tlsConfig        *tls.Config
	timeout          time.Duration
	maxResponseBytes int64
	logger           *slog.Logger
	metrics          *metrics.Metrics
}

// NewRawClient creates a RawClient with the upstream timeouts from cfg.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewRawClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *RawClient {
	return &RawClient{
		dialer: &net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		},
		tlsConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.Upstream.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed targets
		},
		timeout:          time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		maxResponseBytes: cfg.Upstream.MaxResponseBytes,
		logger:           logger.With("component", "raw_client"),
		metrics:          m,
	}
}

// Send writes raw to the target over a fresh connection and returns the
// response as raw bytes. The connection is closed afterwards.
func (c *RawClient) Send(ctx context.Context, target model.Target, raw []byte) ([]byte, error) {
	method := requestMethod(raw)
	c.logger.Debug("upstream request",
		"method", method,
		"addr", target.Addr(),
		"tls", target.TLS,
	)

	start := time.Now()
	resp, status, err := c.roundTrip(ctx, target, method, raw)
	duration := time.Since(start).Seconds()

	label := metrics.NormalizeMethod(method)
	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(label).Observe(duration)
	}
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(label, strconv.Itoa(status)).Inc()
	}

	return resp, nil
}

func (c *RawClient) roundTrip(ctx context.Context, target model.Target, method string, raw []byte) ([]byte, int, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dial(ctx, target)
	if err != nil {
		return nil, 0, fmt.Errorf("dial %s: %w", target.Addr(), err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// Unblock reads and writes as soon as ctx is canceled.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if _, err := conn.Write(raw); err != nil {
		return nil, 0, fmt.Errorf("write request: %w", err)
	}

	// One byte past the cap tells an oversized response from one that fits exactly.
	var r io.Reader = conn
	var lr *io.LimitedReader
	if c.maxResponseBytes > 0 {
		lr = &io.LimitedReader{R: conn, N: c.maxResponseBytes + 1}
		r = lr
	}
	overflow := func() bool { return lr != nil && lr.N == 0 }

	resp, err := http.ReadResponse(bufio.NewReader(r), &http.Request{Method: method})
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		if overflow() {
			return nil, 0, fmt.Errorf("%w (%d bytes)", ErrResponseTooLarge, c.maxResponseBytes)
		}
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	dump, err := httputil.DumpResponse(resp, true)
	if overflow() {
		return nil, resp.StatusCode, fmt.Errorf("%w (%d bytes)", ErrResponseTooLarge, c.maxResponseBytes)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read response body: %w", err)
	}
	return dump, resp.StatusCode, nil
}

func (c *RawClient) dial(ctx context.Context, target model.Target) (net.Conn, error) {
	if !target.TLS {
		return c.dialer.DialContext(ctx, "tcp", target.Addr())
	}
	cfg := c.tlsConfig.Clone()
	cfg.ServerName = target.Host
	d := &tls.Dialer{NetDialer: c.dialer, Config: cfg}
	return d.DialContext(ctx, "tcp", target.Addr())
}

// requestMethod returns the first token of the request line.
func requestMethod(raw []byte) string {
	line, _, _ := bytes.Cut(raw, []byte("\n"))
	method, _, _ := bytes.Cut(bytes.TrimSpace(line), []byte(" "))
	return string(method)
}
