// Package turret holds the shared message and command vocabulary that
// flows across the bus between the Arduino link, the TCP control server
// and the video pipeline.
package turret

import (
	"net"
	"strconv"
)

// Endpoint is a value stand-in for a client's network address. It is not
// comparable with == (see Equal).
type Endpoint struct {
	IP   net.IP
	Port int
}

func EndpointFromAddr(a net.Addr) Endpoint {
	switch v := a.(type) {
	case *net.TCPAddr:
		return Endpoint{IP: v.IP, Port: v.Port}
	case *net.UDPAddr:
		return Endpoint{IP: v.IP, Port: v.Port}
	default:
		host, portStr, err := net.SplitHostPort(a.String())
		if err != nil {
			return Endpoint{}
		}
		port, _ := strconv.Atoi(portStr)
		return Endpoint{IP: net.ParseIP(host), Port: port}
	}
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.IP.String(), strconv.Itoa(e.Port))
}

// Key returns a comparable string suitable for map keys and element names.
func (e Endpoint) Key() string { return e.String() }

// SameIP reports whether two endpoints share the same IP address,
// ignoring port. Used to validate the UDP handshake's source address.
func (e Endpoint) SameIP(ip net.IP) bool { return e.IP.Equal(ip) }

// Equal compares two endpoints by value. net.IP is a byte slice, so
// Endpoint is not comparable with ==; this is the equality callers need
// instead (e.g. matching a bus event's ForClient against a queue member).
func (e Endpoint) Equal(o Endpoint) bool { return e.Port == o.Port && e.IP.Equal(o.IP) }

// Client is a snapshot of a connected control client.
type Client struct {
	Addr          Endpoint
	QueuePosition uint32
}

// SourceKind discriminates MessageSource variants.
type SourceKind int

const (
	SourceArduino SourceKind = iota
	SourceControlServer
	SourceVideoServer
	SourceClient
)

func (k SourceKind) String() string {
	switch k {
	case SourceArduino:
		return "arduino"
	case SourceControlServer:
		return "control_server"
	case SourceVideoServer:
		return "video_server"
	case SourceClient:
		return "client"
	default:
		return "unknown"
	}
}

// MessageSource identifies who produced a Message. Client is populated
// only when Kind == SourceClient; QueuePosition there is an advisory
// snapshot taken at the moment the message was produced — see Queue for
// the authoritative value.
type MessageSource struct {
	Kind   SourceKind
	Client Client
}

func FromArduino() MessageSource       { return MessageSource{Kind: SourceArduino} }
func FromControlServer() MessageSource { return MessageSource{Kind: SourceControlServer} }
func FromVideoServer() MessageSource   { return MessageSource{Kind: SourceVideoServer} }
func FromClient(c Client) MessageSource {
	return MessageSource{Kind: SourceClient, Client: c}
}

// IsAuthoritative reports whether this source is allowed to issue hardware
// commands: internal sources always are, a client source only at queue
// position 0.
func (s MessageSource) IsAuthoritative() bool {
	if s.Kind != SourceClient {
		return true
	}
	return s.Client.QueuePosition == 0
}
