package portmap

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"

	xdr "github.com/rasky/go-xdr/xdr2"
)

var testMappings = []Mapping{
	{Program: 100000, Version: 2, Protocol: ProtoTCP, Port: 111},
	{Program: 100000, Version: 2, Protocol: ProtoUDP, Port: 111},
	{Program: 100003, Version: 3, Protocol: ProtoTCP, Port: 2049},
	{Program: 100005, Version: 3, Protocol: ProtoUDP, Port: 20048},
}

// MockPortmapper answers DUMP and GETPORT from a fixed list of mappings
type MockPortmapper struct {
	Mappings []Mapping

	// NoDump replies PROC_UNAVAIL to DUMP calls
	NoDump bool

	// Silent never replies
	Silent bool

	// Fragmented splits tcp replies into two record fragments
	Fragmented bool

	// Truncated cuts DUMP replies short in the middle of a mapping
	Truncated bool

	// WrongXid answers with an xid the client never used
	WrongXid bool

	// Denied rejects every call with AUTH_ERROR
	Denied bool
}

func (m *MockPortmapper) reply(call []byte) ([]byte, bool) {
	if m.Silent {
		return nil, false
	}

	r := bytes.NewReader(call)
	var h callHeader
	_, err := xdr.Unmarshal(r, &h)
	if err != nil {
		return nil, false
	}

	xid := h.Xid
	if m.WrongXid {
		xid++
	}

	var out bytes.Buffer
	if m.Denied {
		xdr.Marshal(&out, &replyHeader{Xid: xid, MsgType: msgReply, ReplyStat: replyDenied})
		// AUTH_ERROR, AUTH_TOOWEAK
		xdr.Marshal(&out, uint32(1))
		xdr.Marshal(&out, uint32(5))
		return out.Bytes(), true
	}

	xdr.Marshal(&out, &replyHeader{Xid: xid, MsgType: msgReply, ReplyStat: replyAccepted})

	stat := acceptSuccess
	if h.Procedure == ProcDump && m.NoDump {
		stat = acceptProcUnavail
	}
	xdr.Marshal(&out, &acceptedReply{Verf: opaqueAuth{Flavor: authNone}, AcceptStat: stat})

	if stat != acceptSuccess {
		return out.Bytes(), true
	}

	switch h.Procedure {
	case ProcDump:
		for _, mapping := range m.Mappings {
			xdr.Marshal(&out, true)
			xdr.Marshal(&out, &mapping)
		}
		xdr.Marshal(&out, false)

		if m.Truncated {
			return out.Bytes()[:out.Len()-6], true
		}
	case ProcGetport:
		var args Mapping
		xdr.Unmarshal(r, &args)

		var port uint32
		for _, mapping := range m.Mappings {
			if mapping.Program == args.Program && mapping.Protocol == args.Protocol {
				port = mapping.Port
				break
			}
		}
		xdr.Marshal(&out, port)
	}

	return out.Bytes(), true
}

func (m *MockPortmapper) serveTCP(l net.Listener) {
	for {
		c, err := l.Accept()
		if err != nil {
			return
		}

		go func(c net.Conn) {
			defer c.Close()

			call, err := readRecord(c)
			if err != nil {
				return
			}

			reply, ok := m.reply(call)
			if !ok {
				// hold the connection open until the client gives up
				c.Read(make([]byte, 1))
				return
			}

			if m.Fragmented {
				half := len(reply) / 2
				writeFragment(c, reply[:half], false)
				writeFragment(c, reply[half:], true)
				return
			}

			writeFragment(c, reply, true)
		}(c)
	}
}

func writeFragment(c net.Conn, b []byte, last bool) {
	h := uint32(len(b))
	if last {
		h |= lastFragment
	}
	binary.Write(c, binary.BigEndian, h)
	c.Write(b)
}

func (m *MockPortmapper) serveUDP(pc net.PacketConn) {
	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			return
		}

		reply, ok := m.reply(buf[:n])
		if !ok {
			continue
		}

		// a stray reply with the wrong xid should be ignored by the client
		stray := append([]byte{}, reply...)
		binary.BigEndian.PutUint32(stray, binary.BigEndian.Uint32(reply)+1000)
		pc.WriteTo(stray, addr)

		pc.WriteTo(reply, addr)
	}
}

func listenTCP(t *testing.T, m *MockPortmapper) *Client {
	l, err := net.Listen("tcp", "127.0.0.1:")
	if err != nil {
		t.Fatalf("could not listen: %s", err)
	}
	t.Cleanup(func() { l.Close() })

	go m.serveTCP(l)

	return &Client{Network: "tcp", Address: l.Addr().String(), Timeout: time.Second}
}

func listenUDP(t *testing.T, m *MockPortmapper) *Client {
	pc, err := net.ListenPacket("udp", "127.0.0.1:")
	if err != nil {
		t.Fatalf("could not listen: %s", err)
	}
	t.Cleanup(func() { pc.Close() })

	go m.serveUDP(pc)

	return &Client{Network: "udp", Address: pc.LocalAddr().String(), Timeout: time.Second}
}

func TestDump(t *testing.T) {
	c := listenTCP(t, &MockPortmapper{Mappings: testMappings})

	mappings, err := c.Dump(context.Background())
	if err != nil {
		t.Fatalf("unable to dump: %s", err)
	}

	if len(mappings) != len(testMappings) {
		t.Fatalf("expected %d mappings, got %d", len(testMappings), len(mappings))
	}

	for i, m := range mappings {
		if m != testMappings[i] {
			t.Errorf("mapping %d: got %s, want %s", i, m, testMappings[i])
		}
	}
}

func TestDumpFragmented(t *testing.T) {
	c := listenTCP(t, &MockPortmapper{Mappings: testMappings, Fragmented: true})

	mappings, err := c.Dump(context.Background())
	if err != nil {
		t.Fatalf("unable to dump fragmented reply: %s", err)
	}

	if len(mappings) != len(testMappings) {
		t.Fatalf("expected %d mappings, got %d", len(testMappings), len(mappings))
	}
}

func TestDumpEmpty(t *testing.T) {
	c := listenTCP(t, &MockPortmapper{})

	mappings, err := c.Dump(context.Background())
	if err != nil {
		t.Fatalf("unable to dump: %s", err)
	}

	if len(mappings) != 0 {
		t.Fatalf("expected no mappings, got %d", len(mappings))
	}
}

func TestDumpUnsupported(t *testing.T) {
	c := listenTCP(t, &MockPortmapper{Mappings: testMappings, NoDump: true})

	_, err := c.Dump(context.Background())
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}

	// getport should still work
	port, err := c.GetPort(context.Background(), 100003, 0, ProtoTCP)
	if err != nil {
		t.Fatalf("unable to getport: %s", err)
	}

	if port != 2049 {
		t.Fatalf("expected nfs on 2049, got %d", port)
	}
}

func TestMalformedReplies(t *testing.T) {
	tests := []struct {
		name string
		mock *MockPortmapper
	}{
		{"truncated mapping list", &MockPortmapper{Mappings: testMappings, Truncated: true}},
		{"wrong xid", &MockPortmapper{Mappings: testMappings, WrongXid: true}},
		{"denied", &MockPortmapper{Mappings: testMappings, Denied: true}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := listenTCP(t, tc.mock)

			mappings, err := c.Dump(context.Background())
			if !errors.Is(err, ErrProtocol) {
				t.Fatalf("expected ErrProtocol, got %v", err)
			}

			if mappings != nil {
				t.Fatalf("expected no mappings alongside an error, got %d", len(mappings))
			}
		})
	}
}

func TestGetPortDenied(t *testing.T) {
	c := listenTCP(t, &MockPortmapper{Mappings: testMappings, Denied: true})

	_, err := c.GetPort(context.Background(), 100003, 0, ProtoTCP)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestGetPortUDP(t *testing.T) {
	c := listenUDP(t, &MockPortmapper{Mappings: testMappings})

	port, err := c.GetPort(context.Background(), 100005, 0, ProtoUDP)
	if err != nil {
		t.Fatalf("unable to getport: %s", err)
	}

	if port != 20048 {
		t.Fatalf("expected mountd on 20048, got %d", port)
	}

	port, err = c.GetPort(context.Background(), 999999, 0, ProtoUDP)
	if err != nil {
		t.Fatalf("unable to getport: %s", err)
	}

	if port != 0 {
		t.Fatalf("unregistered program should have port 0, got %d", port)
	}
}

func TestPing(t *testing.T) {
	c := listenTCP(t, &MockPortmapper{})

	err := c.Ping(context.Background())
	if err != nil {
		t.Fatalf("unable to ping: %s", err)
	}
}

func TestTimeout(t *testing.T) {
	c := listenTCP(t, &MockPortmapper{Silent: true})
	c.Timeout = 100 * time.Millisecond

	start := time.Now()
	_, err := c.Dump(context.Background())
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}

	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout was not honoured, took %s", time.Since(start))
	}
}

func TestCancel(t *testing.T) {
	c := listenTCP(t, &MockPortmapper{Silent: true})
	c.Timeout = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := c.Dump(ctx)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable after cancel, got %v", err)
	}
}

func TestUnreachable(t *testing.T) {
	// grab a free port and close it again so nothing listens there
	l, err := net.Listen("tcp", "127.0.0.1:")
	if err != nil {
		t.Fatalf("could not listen: %s", err)
	}
	addr := l.Addr().String()
	l.Close()

	c := &Client{Address: addr, Timeout: time.Second}

	_, err = c.Dump(context.Background())
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}
