// Package model defines shared types for the orchestrator.
package model

import (
	"net"
	"strconv"
)

// Target holds the coordinates every call of one run is sent to.
type Target struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	TLS  bool   `json:"tls"`
}

// Addr returns the target as host:port.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Message is the item a run is triggered on: a raw request and the service it belongs to.
type Message struct {
	Service Target
	Request []byte
}
