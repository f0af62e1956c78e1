package httpmsg

// Helpers analyses raw messages and edits request parameters.
type Helpers struct{}

// AnalyzeRequest parses raw request bytes.
func (Helpers) AnalyzeRequest(raw []byte) (*Request, error) {
	return ParseRequest(raw)
}

// AnalyzeResponse parses raw response bytes and locates the body.
func (Helpers) AnalyzeResponse(raw []byte) (*Response, error) {
	return ParseResponse(raw)
}

// AddParameter appends p to req.
func (Helpers) AddParameter(req *Request, p Parameter) {
	req.AddParameter(p)
}

// RemoveParameter removes the first exact match of p from req.
func (Helpers) RemoveParameter(req *Request, p Parameter) bool {
	return req.RemoveParameter(p)
}
