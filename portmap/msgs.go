package portmap

import (
	"fmt"
)

// rpc message types and reply states - See RFC5531 9. The RPC Message Protocol
// https://tools.ietf.org/html/rfc5531#section-9
const (
	msgCall  uint32 = 0
	msgReply uint32 = 1

	rpcVersion uint32 = 2

	replyAccepted uint32 = 0
	replyDenied   uint32 = 1

	authNone uint32 = 0
)

// accept_stat values
const (
	acceptSuccess      uint32 = 0
	acceptProgUnavail  uint32 = 1
	acceptProgMismatch uint32 = 2
	acceptProcUnavail  uint32 = 3
	acceptGarbageArgs  uint32 = 4
	acceptSystemErr    uint32 = 5
)

// opaqueAuth is used for both credentials and verifiers
// https://tools.ietf.org/html/rfc5531#section-8.2
type opaqueAuth struct {
	Flavor uint32
	Body   []byte
}

// callHeader precedes the procedure arguments of every call
type callHeader struct {
	Xid        uint32
	MsgType    uint32
	RPCVersion uint32
	Program    uint32
	Version    uint32
	Procedure  uint32
	Cred       opaqueAuth
	Verf       opaqueAuth
}

// replyHeader is the part of a reply shared by accepted and denied replies
type replyHeader struct {
	Xid       uint32
	MsgType   uint32
	ReplyStat uint32
}

// acceptedReply follows a replyHeader when ReplyStat is replyAccepted
type acceptedReply struct {
	Verf       opaqueAuth
	AcceptStat uint32
}

// Mapping is the portmapper's (program, version, protocol) -> port
// binding - See RFC1833 3. Port Mapper Program Protocol
// https://tools.ietf.org/html/rfc1833#section-3
type Mapping struct {
	Program  uint32
	Version  uint32
	Protocol uint32
	Port     uint32
}

func (m Mapping) String() string {
	return fmt.Sprintf("%d v%d %s port %d", m.Program, m.Version, ProtocolName(m.Protocol), m.Port)
}

func acceptStatName(s uint32) string {
	switch s {
	case acceptSuccess:
		return "SUCCESS"
	case acceptProgUnavail:
		return "PROG_UNAVAIL"
	case acceptProgMismatch:
		return "PROG_MISMATCH"
	case acceptProcUnavail:
		return "PROC_UNAVAIL"
	case acceptGarbageArgs:
		return "GARBAGE_ARGS"
	case acceptSystemErr:
		return "SYSTEM_ERR"
	default:
		return fmt.Sprintf("accept_stat(%d)", s)
	}
}
