// pkg/sip/message/headers.go
package message

import (
	"fmt"
	"strings"
)

// Value is a SIP header value that knows how to render itself on the wire.
// Structured headers (name-addr, CSeq, Via) get their own variant with an
// explicit renderer instead of being passed around as pre-formatted strings.
type Value interface {
	Render() string
}

// Text is a plain header value used verbatim.
type Text string

func (t Text) Render() string { return string(t) }

// Param is a single ;name=value header parameter.
type Param struct {
	Name  string
	Value string
}

func renderParams(params []Param) string {
	var sb strings.Builder
	for _, p := range params {
		sb.WriteByte(';')
		sb.WriteString(p.Name)
		if p.Value != "" {
			sb.WriteByte('=')
			sb.WriteString(p.Value)
		}
	}
	return sb.String()
}

// NameAddr is a From/To/Contact style value: optional display name, a SIP URI
// in angle brackets, and trailing parameters (tag etc).
type NameAddr struct {
	Display string
	URI     string
	Params  []Param
}

func (n NameAddr) Render() string {
	var sb strings.Builder
	if n.Display != "" {
		fmt.Fprintf(&sb, "%q ", n.Display)
	}
	fmt.Fprintf(&sb, "<%s>", n.URI)
	sb.WriteString(renderParams(n.Params))
	return sb.String()
}

// CSeq is a sequence number paired with the request method.
type CSeq struct {
	Seq    uint32
	Method string
}

func (c CSeq) Render() string {
	return fmt.Sprintf("%d %s", c.Seq, c.Method)
}

// Via is the topmost Via hop this client stamps on outgoing requests.
type Via struct {
	Host   string
	Port   int
	Params []Param
}

func (v Via) Render() string {
	return fmt.Sprintf("SIP/2.0/UDP %s:%d%s", v.Host, v.Port, renderParams(v.Params))
}

// Header is one serialized header line. Insertion order is preserved by the
// Request's header slice.
type Header struct {
	Name  string
	Value Value
}
