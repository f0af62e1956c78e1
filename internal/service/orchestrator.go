// Package service implements the three-step token orchestration.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"threestep-go/internal/httpmsg"
	"threestep-go/internal/metrics"
	"threestep-go/internal/model"
)

var (
	// ErrInvalidRequest is returned when the triggering request cannot be analysed.
	ErrInvalidRequest = errors.New("invalid triggering request")
	// ErrNoTokenResponse is returned when the token endpoint gave no response.
	ErrNoTokenResponse = errors.New("could not get token")
	// ErrTokenParse is returned when no token can be read from the token response.
	ErrTokenParse = errors.New("could not parse token")
	// ErrNoOriginalResponse is returned when the rewritten request gave no response.
	ErrNoOriginalResponse = errors.New("no answer to original request")
	// ErrNoResultResponse is returned when the result request gave no response.
	ErrNoResultResponse = errors.New("no answer to result request")
)

var errEmptyResponse = errors.New("empty response")

// Transport sends raw request bytes to a target and returns the raw response.
type Transport interface {
	Send(ctx context.Context, target model.Target, raw []byte) ([]byte, error)
}

// Analyzer parses raw messages.
type Analyzer interface {
	AnalyzeRequest(raw []byte) (*httpmsg.Request, error)
	AnalyzeResponse(raw []byte) (*httpmsg.Response, error)
}

// Codec edits request parameters.
type Codec interface {
	AddParameter(req *httpmsg.Request, p httpmsg.Parameter)
	RemoveParameter(req *httpmsg.Request, p httpmsg.Parameter) bool
}

// Sink receives human-readable progress and failure messages.
type Sink interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Orchestrator runs the token / original request / result request sequence.
// It holds no per-run state and is safe for concurrent use.
type Orchestrator struct {
	transport Transport
	analyzer  Analyzer
	codec     Codec
	sink      Sink
	protocol  Protocol
	metrics   *metrics.Metrics
}

// NewOrchestrator creates an Orchestrator.
// The metrics parameter is optional; pass nil to disable run metrics.
func NewOrchestrator(t Transport, a Analyzer, c Codec, s Sink, p Protocol, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		transport: t,
		analyzer:  a,
		codec:     c,
		sink:      s,
		protocol:  p,
		metrics:   m,
	}
}

// Protocol returns the endpoint constants the orchestrator was built with.
func (o *Orchestrator) Protocol() Protocol {
	return o.protocol
}

// Run fetches a fresh token, sends the triggering request rewritten to carry it,
// and returns the request that polls for the operation's result. The returned
// request is not sent. Every failure is terminal and reported once to the sink.
func (o *Orchestrator) Run(ctx context.Context, runID string, msg *model.Message) (*httpmsg.Request, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	target := msg.Service

	trigger, err := o.analyzer.AnalyzeRequest(msg.Request)
	if err != nil {
		return nil, o.fail(runID, metrics.OutcomeInvalidRequest, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
	}

	tokenReq := o.protocol.BuildEndpointRequest(trigger, o.protocol.TokenFunction)
	tokenRaw, err := o.send(ctx, "token", target, tokenReq)
	if err != nil {
		return nil, o.fail(runID, metrics.OutcomeNoToken, fmt.Errorf("%w: %w", ErrNoTokenResponse, err))
	}

	token, err := o.parseToken(tokenRaw)
	if err != nil {
		return nil, o.fail(runID, metrics.OutcomeTokenParse, err)
	}
	o.sink.Info("token received", "run_id", runID, "token", token)

	rewritten := o.Rewrite(trigger, token)

	o.sink.Info("sending original request", "run_id", runID, "target", target.Addr())
	if _, err := o.send(ctx, "original", target, rewritten); err != nil {
		return nil, o.fail(runID, metrics.OutcomeNoOriginalReply, fmt.Errorf("%w: %w", ErrNoOriginalResponse, err))
	}

	o.sink.Info("getting response", "run_id", runID)
	o.record(metrics.OutcomeOK)
	return o.protocol.BuildEndpointRequest(trigger, o.protocol.ResultFunction), nil
}

// Rewrite returns a copy of trigger carrying token in place of the token
// field's value and without session-identifier parameters. Every parameter is
// removed and re-appended, so the resulting order may differ from the original.
func (o *Orchestrator) Rewrite(trigger *httpmsg.Request, token string) *httpmsg.Request {
	out := trigger.Clone()

	for _, p := range trigger.Parameters() {
		o.codec.RemoveParameter(out, p)
		switch {
		case strings.EqualFold(p.Name, o.protocol.SessionField):
			continue
		case p.Name == o.protocol.TokenField:
			o.codec.AddParameter(out, httpmsg.NewParameter(p.Name, escapeToken(token, p.Location), p.Location))
		default:
			o.codec.AddParameter(out, p)
		}
	}
	return out
}

// escapeToken encodes token for loc. URL and body parameters use form
// encoding; cookie values must not turn a space into "+".
func escapeToken(token string, loc httpmsg.Location) string {
	if loc == httpmsg.LocationCookie {
		return url.PathEscape(token)
	}
	return url.QueryEscape(token)
}

// FetchResult sends a result request returned by Run and returns the response.
func (o *Orchestrator) FetchResult(ctx context.Context, target model.Target, req *httpmsg.Request) (*httpmsg.Response, error) {
	raw, err := o.send(ctx, "result", target, req)
	if err != nil {
		o.sink.Error(ErrNoResultResponse.Error(), "err", err)
		return nil, fmt.Errorf("%w: %w", ErrNoResultResponse, err)
	}
	resp, err := o.analyzer.AnalyzeResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoResultResponse, err)
	}
	return resp, nil
}

func (o *Orchestrator) parseToken(raw []byte) (string, error) {
	resp, err := o.analyzer.AnalyzeResponse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenParse, err)
	}
	return ParseToken(resp.Body())
}

// send serializes req and hands it to the transport. An empty response counts
// as no response.
func (o *Orchestrator) send(ctx context.Context, step string, target model.Target, req *httpmsg.Request) ([]byte, error) {
	start := time.Now()
	raw, err := o.transport.Send(ctx, target, req.Bytes())
	if o.metrics != nil {
		o.metrics.StepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errEmptyResponse
	}
	return raw, nil
}

func (o *Orchestrator) fail(runID, outcome string, err error) error {
	o.sink.Error(err.Error(), "run_id", runID)
	o.record(outcome)
	return err
}

func (o *Orchestrator) record(outcome string) {
	if o.metrics != nil {
		o.metrics.RunsTotal.WithLabelValues(outcome).Inc()
	}
}
