// Package sockets lists open internet sockets together with their owning
// processes
package sockets

import (
	"context"
	"fmt"
	"sort"

	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/fasmide/portname/portname"
)

// socket types as reported by gopsutil
const (
	sockStream = 1
	sockDgram  = 2
)

// Socket is a (TCP or UDP) socket
type Socket struct {
	Protocol   portname.Protocol
	LocalAddr  string
	LocalPort  int
	RemoteAddr string
	RemotePort int
	Status     string
	PID        int32
	Command    string
}

// Listen reports if the socket has no peer
func (s Socket) Listen() bool {
	return s.RemotePort == 0
}

// Lister produces a list of sockets
type Lister interface {
	List(ctx context.Context) ([]Socket, error)
}

// System lists the sockets of the running system
type System struct{}

// List returns every tcp and udp socket, sorted by command and pid
func (s *System) List(ctx context.Context) ([]Socket, error) {
	conns, err := net.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return nil, fmt.Errorf("unable to list connections: %w", err)
	}

	names := make(map[int32]string)
	socks := make([]Socket, 0, len(conns))
	for _, c := range conns {
		var proto portname.Protocol
		switch c.Type {
		case sockStream:
			proto = portname.TCP
		case sockDgram:
			proto = portname.UDP
		default:
			continue
		}

		socks = append(socks, Socket{
			Protocol:   proto,
			LocalAddr:  c.Laddr.IP,
			LocalPort:  int(c.Laddr.Port),
			RemoteAddr: c.Raddr.IP,
			RemotePort: int(c.Raddr.Port),
			Status:     c.Status,
			PID:        c.Pid,
			Command:    commandName(ctx, names, c.Pid),
		})
	}

	Sort(socks)

	return socks, nil
}

// commandName looks up the name of pid, remembering answers in names
func commandName(ctx context.Context, names map[int32]string, pid int32) string {
	if pid <= 0 {
		return ""
	}

	if n, ok := names[pid]; ok {
		return n
	}

	var n string
	p, err := process.NewProcessWithContext(ctx, pid)
	if err == nil {
		// the process might be gone by now
		n, _ = p.NameWithContext(ctx)
	}

	names[pid] = n
	return n
}

// Sort orders sockets by command, pid and local port
func Sort(socks []Socket) {
	sort.SliceStable(socks, func(i, j int) bool {
		a, b := socks[i], socks[j]
		if a.Command != b.Command {
			return a.Command < b.Command
		}
		if a.PID != b.PID {
			return a.PID < b.PID
		}
		if a.Protocol != b.Protocol {
			return a.Protocol < b.Protocol
		}
		return a.LocalPort < b.LocalPort
	})
}
