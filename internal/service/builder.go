package service

import (
	"strings"

	"threestep-go/internal/config"
	"threestep-go/internal/httpmsg"
)

const (
	postMethod   = "POST"
	defaultProto = "HTTP/1.1"
)

// Protocol holds the constants of the token/result endpoint of the target application.
type Protocol struct {
	EndpointPath   string
	FunctionParam  string
	TokenFunction  string
	ResultFunction string
	TokenField     string
	SessionField   string
}

// DefaultProtocol returns the constants the target application family ships with.
func DefaultProtocol() Protocol {
	return Protocol{
		EndpointPath:   "/xml/getter.xml",
		FunctionParam:  "fun",
		TokenFunction:  "3",
		ResultFunction: "128",
		TokenField:     "token",
		SessionField:   "SID",
	}
}

// ProtocolFromConfig reads the [protocol] table. Load has already applied defaults.
func ProtocolFromConfig(cfg *config.Config) Protocol {
	return Protocol{
		EndpointPath:   cfg.Protocol.EndpointPath,
		FunctionParam:  cfg.Protocol.FunctionParam,
		TokenFunction:  cfg.Protocol.TokenFunction,
		ResultFunction: cfg.Protocol.ResultFunction,
		TokenField:     cfg.Protocol.TokenField,
		SessionField:   cfg.Protocol.SessionField,
	}
}

// BuildEndpointRequest returns a sibling of template aimed at the endpoint path,
// with a body selecting functionCode. All header lines other than a POST request
// line are copied verbatim. A non-POST request line is kept as is, path included.
func (p Protocol) BuildEndpointRequest(template *httpmsg.Request, functionCode string) *httpmsg.Request {
	headers := make([]string, len(template.Headers))
	copy(headers, template.Headers)

	if len(headers) > 0 && strings.HasPrefix(headers[0], postMethod) {
		headers[0] = postMethod + " " + p.EndpointPath + " " + protoOf(headers[0])
	}

	fn := httpmsg.NewParameter(p.FunctionParam, functionCode, httpmsg.LocationBody)
	return &httpmsg.Request{
		Headers: headers,
		Body:    []byte(fn.String()),
	}
}

func protoOf(requestLine string) string {
	if fields := strings.Fields(requestLine); len(fields) >= 3 {
		return fields[2]
	}
	return defaultProto
}
