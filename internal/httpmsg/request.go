// Package httpmsg models raw HTTP messages as ordered header lines plus a body,
// with parameter analysis and surgery on top.
package httpmsg

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const crlf = "\r\n"

// ErrMalformed is returned when raw bytes cannot be read as an HTTP message.
var ErrMalformed = errors.New("malformed HTTP message")

// Request is an HTTP request as sent on the wire. Headers[0] is the request line.
type Request struct {
	Headers []string
	Body    []byte
}

// ParseRequest splits raw request bytes into header lines and body.
// A message without a blank line terminator is read as headers only.
func ParseRequest(raw []byte) (*Request, error) {
	headEnd, bodyStart := splitMessage(raw)
	lines := splitLines(raw[:headEnd])
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, fmt.Errorf("%w: empty request line", ErrMalformed)
	}

	return &Request{
		Headers: lines,
		Body:    bytes.Clone(raw[bodyStart:]),
	}, nil
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	headers := make([]string, len(r.Headers))
	copy(headers, r.Headers)
	return &Request{Headers: headers, Body: bytes.Clone(r.Body)}
}

// RequestLine returns the method, target and protocol version of the first line.
// Missing parts are returned empty.
func (r *Request) RequestLine() (method, target, proto string) {
	if len(r.Headers) == 0 {
		return "", "", ""
	}
	fields := strings.Fields(r.Headers[0])
	switch len(fields) {
	case 0:
		return "", "", ""
	case 1:
		return fields[0], "", ""
	case 2:
		return fields[0], fields[1], ""
	default:
		return fields[0], fields[1], fields[2]
	}
}

// Method returns the request method.
func (r *Request) Method() string {
	m, _, _ := r.RequestLine()
	return m
}

// Target returns the request target (path and query).
func (r *Request) Target() string {
	_, t, _ := r.RequestLine()
	return t
}

func (r *Request) setTarget(target string) {
	method, _, proto := r.RequestLine()
	line := method + " " + target
	if proto != "" {
		line += " " + proto
	}
	r.Headers[0] = line
}

// Header returns the value of the first header line with the given name.
func (r *Request) Header(name string) (string, bool) {
	if i := r.headerIndex(name); i > 0 {
		_, v, _ := splitHeader(r.Headers[i])
		return v, true
	}
	return "", false
}

// SetHeader replaces the first header line with the given name, or appends one.
func (r *Request) SetHeader(name, value string) {
	line := name + ": " + value
	if i := r.headerIndex(name); i > 0 {
		r.Headers[i] = line
		return
	}
	r.Headers = append(r.Headers, line)
}

// headerIndex returns the index of the first matching header line, or -1.
func (r *Request) headerIndex(name string) int {
	for i := 1; i < len(r.Headers); i++ {
		if n, _, ok := splitHeader(r.Headers[i]); ok && strings.EqualFold(n, name) {
			return i
		}
	}
	return -1
}

// Bytes serializes the request. Content-Length is set to the body length when
// the request carries a body or already declares one; the receiver is not modified.
func (r *Request) Bytes() []byte {
	out := r
	if len(r.Body) > 0 || r.headerIndex("Content-Length") > 0 {
		if _, chunked := r.Header("Transfer-Encoding"); !chunked {
			out = r.Clone()
			out.SetHeader("Content-Length", strconv.Itoa(len(r.Body)))
		}
	}

	var buf bytes.Buffer
	buf.WriteString(strings.Join(out.Headers, crlf))
	buf.WriteString(crlf + crlf)
	buf.Write(out.Body)
	return buf.Bytes()
}

// String returns the serialized request.
func (r *Request) String() string {
	return string(r.Bytes())
}

// splitMessage returns the end of the header block and the start of the body.
func splitMessage(raw []byte) (headEnd, bodyStart int) {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return i, i + 4
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 {
		return i, i + 2
	}
	return len(raw), len(raw)
}

func splitLines(head []byte) []string {
	if len(head) == 0 {
		return nil
	}
	lines := strings.Split(string(head), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func splitHeader(line string) (name, value string, ok bool) {
	name, value, ok = strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(name), strings.TrimSpace(value), true
}
