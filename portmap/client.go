// Package portmap talks to the ONC RPC portmapper (rpcbind) using version 2
// of the protocol, enough to dump its registrations and ask for single ports
package portmap

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"sync/atomic"
	"time"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// Portmapper program, version and procedure numbers - See RFC1833 3.
const (
	Program uint32 = 100000
	Version uint32 = 2

	ProcNull    uint32 = 0
	ProcGetport uint32 = 3
	ProcDump    uint32 = 4
)

// IPPROTO values used in mappings
const (
	ProtoTCP uint32 = 6
	ProtoUDP uint32 = 17
)

// DefaultAddress is the well known portmapper address on the local host
const DefaultAddress = "127.0.0.1:111"

// DefaultTimeout bounds a whole conversation when the Client has no Timeout
const DefaultTimeout = 2 * time.Second

const (
	// replies larger than this are not something a portmapper would send
	maxRecordSize = 1 << 20
	maxDatagram   = 65535

	lastFragment = 1 << 31
)

// ErrUnreachable errors are returned when the portmapper cannot be
// dialed, timed out or the connection broke
var ErrUnreachable = errors.New("portmapper unreachable")

// ErrProtocol errors are returned when the portmapper replied with something
// malformed or refused the call
var ErrProtocol = errors.New("portmapper protocol error")

// Client is a portmapper client, every call uses its own short lived connection
type Client struct {
	// Network is either "tcp" or "udp", defaults to tcp
	Network string

	// Address of the portmapper, defaults to DefaultAddress
	Address string

	// Timeout of a single call, defaults to DefaultTimeout
	Timeout time.Duration

	xid uint32
}

// Dump fetches every registered mapping (PMAPPROC_DUMP)
func (c *Client) Dump(ctx context.Context) ([]Mapping, error) {
	r, err := c.call(ctx, ProcDump, nil)
	if err != nil {
		return nil, fmt.Errorf("dump: %w", err)
	}

	mappings := make([]Mapping, 0, 32)
	for {
		var more bool
		_, err := xdr.Unmarshal(r, &more)
		if err != nil {
			return nil, fmt.Errorf("%w: dump: unable to decode list: %s", ErrProtocol, err)
		}

		if !more {
			break
		}

		var m Mapping
		_, err = xdr.Unmarshal(r, &m)
		if err != nil {
			return nil, fmt.Errorf("%w: dump: unable to decode mapping: %s", ErrProtocol, err)
		}

		mappings = append(mappings, m)
	}

	return mappings, nil
}

// GetPort asks for the port of a (program, version, protocol) tuple
// (PMAPPROC_GETPORT), zero means the program is not registered
func (c *Client) GetPort(ctx context.Context, prog, vers, prot uint32) (uint32, error) {
	args := Mapping{Program: prog, Version: vers, Protocol: prot}

	r, err := c.call(ctx, ProcGetport, &args)
	if err != nil {
		return 0, fmt.Errorf("getport %d: %w", prog, err)
	}

	var port uint32
	_, err = xdr.Unmarshal(r, &port)
	if err != nil {
		return 0, fmt.Errorf("%w: getport %d: unable to decode port: %s", ErrProtocol, prog, err)
	}

	return port, nil
}

// Ping calls the NULL procedure
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, ProcNull, nil)
	return err
}

// call does one request/reply exchange and returns a reader positioned
// at the procedure results
func (c *Client) call(ctx context.Context, proc uint32, args interface{}) (io.Reader, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	xid := c.nextXid()

	var msg bytes.Buffer
	_, err := xdr.Marshal(&msg, &callHeader{
		Xid:        xid,
		MsgType:    msgCall,
		RPCVersion: rpcVersion,
		Program:    Program,
		Version:    Version,
		Procedure:  proc,
		Cred:       opaqueAuth{Flavor: authNone},
		Verf:       opaqueAuth{Flavor: authNone},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to encode call: %w", err)
	}

	if args != nil {
		_, err = xdr.Marshal(&msg, args)
		if err != nil {
			return nil, fmt.Errorf("unable to encode arguments: %w", err)
		}
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, c.network(), c.address())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, err)
	}
	defer conn.Close()

	// unblock reads and writes when ctx is cancelled before the deadline
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	deadline, _ := ctx.Deadline()
	err = conn.SetDeadline(deadline)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, err)
	}

	var reply []byte
	if c.network() == "udp" {
		reply, err = exchangeDatagram(conn, msg.Bytes(), xid)
	} else {
		reply, err = exchangeRecord(conn, msg.Bytes())
	}
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(reply)
	err = readReplyHeader(r, xid)
	if err != nil {
		return nil, err
	}

	return r, nil
}

func (c *Client) nextXid() uint32 {
	// seed lazily so two processes do not start from the same xid
	atomic.CompareAndSwapUint32(&c.xid, 0, rand.Uint32()|1)
	return atomic.AddUint32(&c.xid, 1)
}

func (c *Client) network() string {
	if c.Network == "" {
		return "tcp"
	}
	return c.Network
}

func (c *Client) address() string {
	if c.Address == "" {
		return DefaultAddress
	}
	return c.Address
}

// exchangeRecord writes msg as a single record and reads back one record
// - See RFC5531 11. Record Marking Standard
func exchangeRecord(conn net.Conn, msg []byte) ([]byte, error) {
	out := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(out, lastFragment|uint32(len(msg)))
	copy(out[4:], msg)

	_, err := conn.Write(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, err)
	}

	return readRecord(conn)
}

func readRecord(r io.Reader) ([]byte, error) {
	var record []byte
	var header [4]byte
	for {
		_, err := io.ReadFull(r, header[:])
		if err != nil {
			return nil, fmt.Errorf("%w: unable to read record header: %s", ErrUnreachable, err)
		}

		h := binary.BigEndian.Uint32(header[:])
		size := int(h &^ lastFragment)
		if len(record)+size > maxRecordSize {
			return nil, fmt.Errorf("%w: record larger than %d bytes", ErrProtocol, maxRecordSize)
		}

		fragment := make([]byte, size)
		_, err = io.ReadFull(r, fragment)
		if err != nil {
			return nil, fmt.Errorf("%w: unable to read record: %s", ErrUnreachable, err)
		}

		record = append(record, fragment...)
		if h&lastFragment != 0 {
			return record, nil
		}
	}
}

// exchangeDatagram sends msg and waits for the reply carrying xid, stray
// datagrams from earlier calls are dropped
func exchangeDatagram(conn net.Conn, msg []byte, xid uint32) ([]byte, error) {
	_, err := conn.Write(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, err)
	}

	buf := make([]byte, maxDatagram)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnreachable, err)
		}

		if n >= 4 && binary.BigEndian.Uint32(buf) == xid {
			return buf[:n], nil
		}
	}
}

func readReplyHeader(r io.Reader, xid uint32) error {
	var h replyHeader
	_, err := xdr.Unmarshal(r, &h)
	if err != nil {
		return fmt.Errorf("%w: unable to decode reply: %s", ErrProtocol, err)
	}

	if h.Xid != xid {
		return fmt.Errorf("%w: reply xid %d does not match call %d", ErrProtocol, h.Xid, xid)
	}

	if h.MsgType != msgReply {
		return fmt.Errorf("%w: unexpected message type %d", ErrProtocol, h.MsgType)
	}

	if h.ReplyStat == replyDenied {
		return fmt.Errorf("%w: call denied", ErrProtocol)
	}

	if h.ReplyStat != replyAccepted {
		return fmt.Errorf("%w: unknown reply state %d", ErrProtocol, h.ReplyStat)
	}

	var a acceptedReply
	_, err = xdr.Unmarshal(r, &a)
	if err != nil {
		return fmt.Errorf("%w: unable to decode accepted reply: %s", ErrProtocol, err)
	}

	if a.AcceptStat != acceptSuccess {
		return fmt.Errorf("%w: %s", ErrProtocol, acceptStatName(a.AcceptStat))
	}

	return nil
}

// ProtocolName names the IPPROTO values found in mappings
func ProtocolName(p uint32) string {
	switch p {
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	default:
		return fmt.Sprintf("proto(%d)", p)
	}
}
