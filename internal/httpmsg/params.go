package httpmsg

import "strings"

// Location is where a parameter lives in a request.
type Location int

const (
	LocationURL Location = iota
	LocationBody
	LocationCookie
)

func (l Location) String() string {
	switch l {
	case LocationURL:
		return "url"
	case LocationBody:
		return "body"
	case LocationCookie:
		return "cookie"
	default:
		return "unknown"
	}
}

// Parameter is a single name/value pair. Names and values are kept in their
// raw, still-encoded form.
type Parameter struct {
	Name     string
	Value    string
	Location Location

	bare bool // written without "=", as in "?debug"
}

// NewParameter builds a Parameter.
func NewParameter(name, value string, loc Location) Parameter {
	return Parameter{Name: name, Value: value, Location: loc}
}

// String returns the parameter as name=value, or just name when it was read
// without an "=".
func (p Parameter) String() string {
	if p.bare && p.Value == "" {
		return p.Name
	}
	return p.Name + "=" + p.Value
}

const formContentType = "application/x-www-form-urlencoded"

// Parameters returns the URL, body and cookie parameters of the request, in that order.
// Body parameters are only read from form-encoded (or untyped) bodies.
func (r *Request) Parameters() []Parameter {
	var params []Parameter

	if _, query, ok := strings.Cut(r.Target(), "?"); ok {
		for _, kv := range parsePairs(query, "&") {
			params = append(params, kv.param(LocationURL))
		}
	}

	if r.hasFormBody() {
		for _, kv := range parsePairs(string(r.Body), "&") {
			params = append(params, kv.param(LocationBody))
		}
	}

	for i := 1; i < len(r.Headers); i++ {
		name, value, ok := splitHeader(r.Headers[i])
		if !ok || !strings.EqualFold(name, "Cookie") {
			continue
		}
		for _, kv := range parsePairs(value, ";") {
			params = append(params, kv.param(LocationCookie))
		}
	}

	return params
}

// AddParameter appends p at the end of its location.
func (r *Request) AddParameter(p Parameter) {
	switch p.Location {
	case LocationURL:
		path, query, _ := strings.Cut(r.Target(), "?")
		if query == "" {
			r.setTarget(path + "?" + p.String())
		} else {
			r.setTarget(path + "?" + query + "&" + p.String())
		}
	case LocationBody:
		if len(r.Body) == 0 {
			r.Body = []byte(p.String())
		} else {
			r.Body = append(r.Body, '&')
			r.Body = append(r.Body, p.String()...)
		}
	case LocationCookie:
		if i := r.headerIndex("Cookie"); i > 0 {
			_, value, _ := splitHeader(r.Headers[i])
			if value == "" {
				r.Headers[i] = "Cookie: " + p.String()
			} else {
				r.Headers[i] = "Cookie: " + value + "; " + p.String()
			}
			return
		}
		r.Headers = append(r.Headers, "Cookie: "+p.String())
	}
}

// RemoveParameter removes the first parameter matching p's name, value and
// location exactly. It reports whether anything was removed.
func (r *Request) RemoveParameter(p Parameter) bool {
	switch p.Location {
	case LocationURL:
		path, query, ok := strings.Cut(r.Target(), "?")
		if !ok {
			return false
		}
		rest, removed := removePair(query, "&", p)
		if !removed {
			return false
		}
		if rest == "" {
			r.setTarget(path)
		} else {
			r.setTarget(path + "?" + rest)
		}
		return true
	case LocationBody:
		if !r.hasFormBody() {
			return false
		}
		rest, removed := removePair(string(r.Body), "&", p)
		if removed {
			r.Body = []byte(rest)
		}
		return removed
	case LocationCookie:
		for i := 1; i < len(r.Headers); i++ {
			name, value, ok := splitHeader(r.Headers[i])
			if !ok || !strings.EqualFold(name, "Cookie") {
				continue
			}
			rest, removed := removePair(value, ";", p)
			if !removed {
				continue
			}
			if rest == "" {
				r.Headers = append(r.Headers[:i], r.Headers[i+1:]...)
			} else {
				r.Headers[i] = name + ": " + rest
			}
			return true
		}
	}
	return false
}

func (r *Request) hasFormBody() bool {
	ct, ok := r.Header("Content-Type")
	if !ok {
		return true
	}
	return strings.HasPrefix(strings.ToLower(ct), formContentType)
}

type pair struct {
	name  string
	value string
	bare  bool
}

func (kv pair) param(loc Location) Parameter {
	return Parameter{Name: kv.name, Value: kv.value, Location: loc, bare: kv.bare}
}

func (kv pair) String() string {
	return kv.param(LocationURL).String()
}

func parsePairs(s, sep string) []pair {
	var out []pair
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, hasEq := strings.Cut(part, "=")
		out = append(out, pair{name: name, value: value, bare: !hasEq})
	}
	return out
}

// removePair drops the first name=value pair matching p and re-joins the rest.
func removePair(s, sep string, p Parameter) (string, bool) {
	pairs := parsePairs(s, sep)
	for i, kv := range pairs {
		if kv.name != p.Name || kv.value != p.Value {
			continue
		}
		pairs = append(pairs[:i], pairs[i+1:]...)

		joiner := sep
		if sep == ";" {
			joiner = "; "
		}
		parts := make([]string, len(pairs))
		for j, q := range pairs {
			parts[j] = q.String()
		}
		return strings.Join(parts, joiner), true
	}
	return s, false
}
