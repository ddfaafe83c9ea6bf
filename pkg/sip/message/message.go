// pkg/sip/message/message.go
package message

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// SIP request methods used by this client.
const (
	MethodRegister = "REGISTER"
	MethodInvite   = "INVITE"
	MethodOptions  = "OPTIONS"
)

// Request is an outgoing SIP request. Headers render in insertion order;
// Content-Length is computed at serialization time and never set by callers.
type Request struct {
	Method  string
	URI     string
	Headers []Header
	Body    []byte
}

// NewRequest creates a request for the given method and request-URI.
func NewRequest(method, uri string) *Request {
	return &Request{Method: method, URI: uri}
}

// AppendHeader adds a header, keeping insertion order.
func (r *Request) AppendHeader(name string, value Value) {
	r.Headers = append(r.Headers, Header{Name: name, Value: value})
}

// Header returns the rendered value of the first header with the given name
// (case-insensitive), or "" if absent.
func (r *Request) Header(name string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value.Render()
		}
	}
	return ""
}

// Bytes serializes the request: request-line, headers in insertion order, a
// computed Content-Length, blank line, body.
func (r *Request) Bytes() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s SIP/2.0\r\n", r.Method, r.URI)
	for _, h := range r.Headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", h.Name, h.Value.Render())
	}
	fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(r.Body))
	buf.WriteString("\r\n")
	buf.Write(r.Body)
	return buf.Bytes()
}

// Response is a parsed SIP response. Header names are normalized to
// lowercase; only the first value of a repeated header is kept, which is
// sufficient for the headers this client consumes.
type Response struct {
	StatusCode int
	Reason     string
	Headers    map[string]string
}

// Header returns the value of a header by its lowercase name.
func (r *Response) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// Provisional reports whether the response is 1xx.
func (r *Response) Provisional() bool {
	return r.StatusCode >= 100 && r.StatusCode < 200
}

// Success reports whether the response is 2xx.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// MalformedResponseError reports a status line that does not match the SIP
// grammar.
type MalformedResponseError struct {
	Line string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed SIP status line: %q", e.Line)
}

var statusLineRe = regexp.MustCompile(`^SIP/([\d.]+) (\d{3})(?: (.*))?$`)

// ParseResponse parses the status line and headers of a SIP response.
// Malformed header lines are skipped; a malformed status line is fatal.
// Bodies are not parsed: every response this client consumes is header-only.
func ParseResponse(data []byte) (*Response, error) {
	head := data
	if i := bytes.Index(data, []byte("\r\n\r\n")); i >= 0 {
		head = data[:i]
	} else if i := bytes.Index(data, []byte("\n\n")); i >= 0 {
		head = data[:i]
	}

	lines := strings.Split(string(head), "\n")
	statusLine := strings.TrimRight(lines[0], "\r")

	m := statusLineRe.FindStringSubmatch(statusLine)
	if m == nil {
		return nil, &MalformedResponseError{Line: statusLine}
	}
	code, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, &MalformedResponseError{Line: statusLine}
	}

	resp := &Response{
		StatusCode: code,
		Reason:     m[3],
		Headers:    make(map[string]string),
	}

	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, exists := resp.Headers[name]; !exists {
			resp.Headers[name] = strings.TrimSpace(value)
		}
	}

	return resp, nil
}
