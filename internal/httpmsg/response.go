package httpmsg

import (
	"fmt"
	"strconv"
	"strings"
)

// Response is a raw HTTP response with the offset at which its body begins.
type Response struct {
	Raw        []byte
	BodyOffset int
}

// ParseResponse locates the body of a raw response.
func ParseResponse(raw []byte) (*Response, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrMalformed)
	}
	_, bodyStart := splitMessage(raw)
	return &Response{Raw: raw, BodyOffset: bodyStart}, nil
}

// Body returns everything after the body offset.
func (r *Response) Body() []byte {
	return r.Raw[r.BodyOffset:]
}

// StatusCode returns the status code from the status line, or 0 if it cannot be read.
func (r *Response) StatusCode() int {
	headEnd, _ := splitMessage(r.Raw)
	lines := splitLines(r.Raw[:headEnd])
	if len(lines) == 0 {
		return 0
	}
	fields := strings.Fields(lines[0])
	if len(fields) < 2 {
		return 0
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0
	}
	return code
}
