package httpmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameters(t *testing.T) {
	req, err := ParseRequest([]byte(formRequest))
	require.NoError(t, err)

	assert.Equal(t, []Parameter{
		{Name: "mode", Value: "fast", Location: LocationURL},
		{Name: "token", Value: "old", Location: LocationBody},
		{Name: "x", Value: "1", Location: LocationBody},
		{Name: "SID", Value: "abc", Location: LocationCookie},
		{Name: "lang", Value: "en", Location: LocationCookie},
	}, req.Parameters())
}

func TestParameters_NonFormBodyIgnored(t *testing.T) {
	req := &Request{
		Headers: []string{"POST /x HTTP/1.1", "Content-Type: text/xml"},
		Body:    []byte("<a>b=c</a>"),
	}

	assert.Empty(t, req.Parameters())
}

func TestRemoveParameter(t *testing.T) {
	tests := []struct {
		name       string
		param      Parameter
		wantOK     bool
		wantLine   string
		wantBody   string
		wantCookie string
	}{
		{
			name:       "body",
			param:      NewParameter("token", "old", LocationBody),
			wantOK:     true,
			wantLine:   "POST /xml/setter.xml?mode=fast HTTP/1.1",
			wantBody:   "x=1",
			wantCookie: "SID=abc; lang=en",
		},
		{
			name:       "url last param drops query",
			param:      NewParameter("mode", "fast", LocationURL),
			wantOK:     true,
			wantLine:   "POST /xml/setter.xml HTTP/1.1",
			wantBody:   "token=old&x=1",
			wantCookie: "SID=abc; lang=en",
		},
		{
			name:       "cookie",
			param:      NewParameter("SID", "abc", LocationCookie),
			wantOK:     true,
			wantLine:   "POST /xml/setter.xml?mode=fast HTTP/1.1",
			wantBody:   "token=old&x=1",
			wantCookie: "lang=en",
		},
		{
			name:       "value must match",
			param:      NewParameter("token", "other", LocationBody),
			wantLine:   "POST /xml/setter.xml?mode=fast HTTP/1.1",
			wantBody:   "token=old&x=1",
			wantCookie: "SID=abc; lang=en",
		},
		{
			name:       "location must match",
			param:      NewParameter("token", "old", LocationURL),
			wantLine:   "POST /xml/setter.xml?mode=fast HTTP/1.1",
			wantBody:   "token=old&x=1",
			wantCookie: "SID=abc; lang=en",
		},
		{
			name:       "name is case-sensitive",
			param:      NewParameter("sid", "abc", LocationCookie),
			wantLine:   "POST /xml/setter.xml?mode=fast HTTP/1.1",
			wantBody:   "token=old&x=1",
			wantCookie: "SID=abc; lang=en",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(formRequest))
			require.NoError(t, err)

			assert.Equal(t, tt.wantOK, req.RemoveParameter(tt.param))
			assert.Equal(t, tt.wantLine, req.Headers[0])
			assert.Equal(t, tt.wantBody, string(req.Body))
			cookie, _ := req.Header("Cookie")
			assert.Equal(t, tt.wantCookie, cookie)
		})
	}
}

func TestRemoveParameter_LastCookieDropsHeader(t *testing.T) {
	req := &Request{Headers: []string{"GET / HTTP/1.1", "Cookie: SID=1", "Host: a"}}

	require.True(t, req.RemoveParameter(NewParameter("SID", "1", LocationCookie)))
	assert.Equal(t, []string{"GET / HTTP/1.1", "Host: a"}, req.Headers)
}

func TestAddParameter(t *testing.T) {
	req := &Request{Headers: []string{"POST /x HTTP/1.1", "Host: a"}}

	req.AddParameter(NewParameter("a", "1", LocationURL))
	req.AddParameter(NewParameter("b", "2", LocationURL))
	req.AddParameter(NewParameter("c", "3", LocationBody))
	req.AddParameter(NewParameter("d", "4", LocationBody))
	req.AddParameter(NewParameter("e", "5", LocationCookie))
	req.AddParameter(NewParameter("f", "6", LocationCookie))

	assert.Equal(t, "POST /x?a=1&b=2 HTTP/1.1", req.Headers[0])
	assert.Equal(t, "c=3&d=4", string(req.Body))
	assert.Equal(t, "Cookie: e=5; f=6", req.Headers[2])
}

func TestRemoveThenAdd_MovesToEnd(t *testing.T) {
	req := &Request{Headers: []string{"POST /x HTTP/1.1"}, Body: []byte("a=1&b=2&c=3")}

	p := NewParameter("a", "1", LocationBody)
	require.True(t, req.RemoveParameter(p))
	req.AddParameter(p)

	assert.Equal(t, "b=2&c=3&a=1", string(req.Body))
}

func TestRemoveThenAdd_KeepsValuelessParameters(t *testing.T) {
	req := &Request{
		Headers: []string{"POST /a?debug&page= HTTP/1.1", "Cookie: flag; k=v"},
		Body:    []byte("flag&x=1&empty="),
	}

	for _, p := range req.Parameters() {
		require.True(t, req.RemoveParameter(p), p.String())
		req.AddParameter(p)
	}

	assert.Equal(t, "POST /a?debug&page= HTTP/1.1", req.Headers[0])
	assert.Equal(t, "flag&x=1&empty=", string(req.Body))
	assert.Equal(t, "Cookie: flag; k=v", req.Headers[1])
}

func TestHelpers(t *testing.T) {
	var h Helpers

	req, err := h.AnalyzeRequest([]byte(formRequest))
	require.NoError(t, err)

	assert.True(t, h.RemoveParameter(req, NewParameter("x", "1", LocationBody)))
	h.AddParameter(req, NewParameter("y", "2", LocationBody))
	assert.Equal(t, "token=old&y=2", string(req.Body))

	resp, err := h.AnalyzeResponse([]byte("HTTP/1.1 200 OK\r\n\r\nok"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body()))
}

func TestLocationString(t *testing.T) {
	assert.Equal(t, "url", LocationURL.String())
	assert.Equal(t, "body", LocationBody.String())
	assert.Equal(t, "cookie", LocationCookie.String())
	assert.Equal(t, "unknown", Location(9).String())
}
