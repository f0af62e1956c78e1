package service

import (
	"errors"
	"net"
	"strconv"

	"threestep-go/internal/httpmsg"
	"threestep-go/internal/model"
)

// ErrNoTarget is returned when no target host can be determined for a run.
var ErrNoTarget = errors.New("no target host: give one explicitly, set [target].host, or send a Host header")

// ResolveTarget fills in the coordinates of a run. An explicit host wins; then
// the configured fallback; then the Host header of the raw request. A missing
// port defaults to 443 for TLS and 80 otherwise.
func ResolveTarget(given, fallback model.Target, raw []byte) (model.Target, error) {
	t := given
	if t.Host == "" {
		t.Host = fallback.Host
		if t.Port == 0 {
			t.Port = fallback.Port
		}
		t.TLS = t.TLS || fallback.TLS
	}

	if t.Host == "" {
		if req, err := httpmsg.ParseRequest(raw); err == nil {
			if hostHeader, ok := req.Header("Host"); ok {
				t.Host, t.Port = splitHostHeader(hostHeader, t.Port)
			}
		}
	}
	if t.Host == "" {
		return model.Target{}, ErrNoTarget
	}

	if t.Port == 0 {
		t.Port = 80
		if t.TLS {
			t.Port = 443
		}
	}
	return t, nil
}

func splitHostHeader(value string, port int) (string, int) {
	host, p, err := net.SplitHostPort(value)
	if err != nil {
		return value, port
	}
	if port == 0 {
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	return host, port
}
