package sockets

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/fasmide/portname/portname"
)

// Resolver names ports, *portname.Cache is one
type Resolver interface {
	ServiceName(ctx context.Context, port int, proto portname.Protocol) (string, bool)
	ProgramOnPort(port int, proto portname.Protocol) (string, bool)
}

// Printer renders sockets in an lsof like fashion
type Printer struct {
	Resolver Resolver

	// Numeric skips name lookups and prints port numbers
	Numeric bool
}

var nameColor = color.New(color.Bold)

// Fprint writes a header and one line per socket
func (p *Printer) Fprint(ctx context.Context, w io.Writer, socks []Socket) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "COMMAND\tPID\tPROTO\tNAME")
	for _, s := range socks {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.Command, s.PID, strings.ToUpper(s.Protocol.String()), p.Name(ctx, s))
	}

	return tw.Flush()
}

// Name renders the address part of a socket e.g. "10.0.0.2:51234->1.1.1.1:https (ESTABLISHED)"
func (p *Printer) Name(ctx context.Context, s Socket) string {
	var sb strings.Builder

	sb.WriteString(p.Endpoint(ctx, s.LocalAddr, s.LocalPort, s.Protocol))

	if !s.Listen() {
		sb.WriteString("->")
		sb.WriteString(p.Endpoint(ctx, s.RemoteAddr, s.RemotePort, s.Protocol))
	}

	if s.Status != "" && s.Status != "NONE" {
		fmt.Fprintf(&sb, " (%s)", s.Status)
	}

	return sb.String()
}

// Endpoint renders addr and port, the port replaced by its name when there is one
func (p *Printer) Endpoint(ctx context.Context, addr string, port int, proto portname.Protocol) string {
	if addr == "" || addr == "0.0.0.0" || addr == "::" {
		addr = "*"
	}

	return net.JoinHostPort(addr, p.Port(ctx, port, proto))
}

// Port names a port, falling back to the rpc program registered on it
// and finally the number
func (p *Printer) Port(ctx context.Context, port int, proto portname.Protocol) string {
	if port <= 0 {
		return "*"
	}

	if p.Numeric || p.Resolver == nil {
		return strconv.Itoa(port)
	}

	if name, ok := p.Resolver.ServiceName(ctx, port, proto); ok {
		return nameColor.Sprint(name)
	}

	if name, ok := p.Resolver.ProgramOnPort(port, proto); ok {
		return nameColor.Sprint(name)
	}

	return strconv.Itoa(port)
}
