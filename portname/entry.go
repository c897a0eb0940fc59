package portname

import (
	"fmt"
	"strings"

	"github.com/fasmide/portname/portmap"
)

// Protocol is the transport protocol of a port
type Protocol int

const (
	TCP Protocol = iota
	UDP
)

// ParseProtocol parses "tcp" or "udp" in any case
func ParseProtocol(s string) (Protocol, bool) {
	switch strings.ToLower(s) {
	case "tcp":
		return TCP, true
	case "udp":
		return UDP, true
	default:
		return -1, false
	}
}

func (p Protocol) valid() bool {
	return p == TCP || p == UDP
}

// ipproto is the IPPROTO value the portmapper uses for p
func (p Protocol) ipproto() uint32 {
	if p == UDP {
		return portmap.ProtoUDP
	}
	return portmap.ProtoTCP
}

func fromIPProto(v uint32) (Protocol, bool) {
	switch v {
	case portmap.ProtoTCP:
		return TCP, true
	case portmap.ProtoUDP:
		return UDP, true
	default:
		return -1, false
	}
}

func (p Protocol) String() string {
	switch p {
	case TCP:
		return "tcp"
	case UDP:
		return "udp"
	default:
		return fmt.Sprintf("protocol(%d)", int(p))
	}
}

// Namespace selects which family of names a port belongs to
type Namespace int

const (
	// ServiceName are names from the services database, keyed by port
	ServiceName Namespace = iota
	// ProgramName are rpc program names, keyed by program number
	ProgramName
)

func (n Namespace) String() string {
	switch n {
	case ServiceName:
		return "service"
	case ProgramName:
		return "program"
	default:
		return fmt.Sprintf("namespace(%d)", int(n))
	}
}

// Status tells if an entry carries a name
type Status int

const (
	Unresolved Status = iota
	Resolved
	ConfirmedAbsent
)

func (s Status) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Resolved:
		return "resolved"
	case ConfirmedAbsent:
		return "absent"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Entry is a cached port to name mapping. Buckets hand out copies, a new
// insert replaces the stored entry
type Entry struct {
	Port     int
	Protocol Protocol
	Name     string
	Status   Status
}

func newEntry(port int, proto Protocol, name string, found bool) Entry {
	if !found {
		return Entry{Port: port, Protocol: proto, Status: ConfirmedAbsent}
	}

	return Entry{Port: port, Protocol: proto, Name: name, Status: Resolved}
}
