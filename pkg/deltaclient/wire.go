/*
Package deltaclient implements the Delta Client (spec §4.11, C11): a
single long-lived TCP connection from the embedded database to a local
mirroring daemon. Every repository that has a client attached forwards
the exact bytes it just flushed to its own delta log (spec §4.8 step 7);
the client frames them and sends them on, treating the daemon's
acknowledgement as best-effort — mirroring never fails the local write,
because durability of the primary already happened before the client is
ever invoked.
*/
package deltaclient

import (
	"encoding/binary"
	"fmt"

	"github.com/hadronzoo/deltadb/pkg/dberr"
)

// headerSize is the framing header: 32-bit session-ID, 1 command byte,
// 16-bit payload length (spec §4.11 "7-byte header per message").
const headerSize = 7

// Command is the one-byte command tag carried in every frame.
type Command byte

const (
	CmdConnect Command = iota + 1
	CmdQuit
	CmdQuefile
	CmdDelfile
	CmdDelta
	CmdAck
	CmdNack
)

func (c Command) String() string {
	switch c {
	case CmdConnect:
		return "CONNECT"
	case CmdQuit:
		return "QUIT"
	case CmdQuefile:
		return "QUEFILE"
	case CmdDelfile:
		return "DELFILE"
	case CmdDelta:
		return "DELTA"
	case CmdAck:
		return "ACK"
	case CmdNack:
		return "NACK"
	default:
		return fmt.Sprintf("command(%d)", byte(c))
	}
}

// frame is one decoded wire message.
type frame struct {
	SessionID uint32
	Cmd       Command
	Payload   []byte
}

// marshalFrame renders the 7-byte header followed by payload, big-endian
// throughout (spec §6 "Delta mirroring wire protocol: all multi-byte
// integers are big-endian").
func marshalFrame(sessionID uint32, cmd Command, payload []byte) ([]byte, error) {
	if len(payload) > 0xFFFF {
		return nil, dberr.New(dberr.KindArgument, "deltaclient.marshalFrame", "payload exceeds 16-bit length field")
	}
	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], sessionID)
	buf[4] = byte(cmd)
	binary.BigEndian.PutUint16(buf[5:7], uint16(len(payload)))
	copy(buf[headerSize:], payload)
	return buf, nil
}

func unmarshalHeader(buf []byte) (sessionID uint32, cmd Command, length uint16, err error) {
	if len(buf) < headerSize {
		return 0, 0, 0, dberr.New(dberr.KindFormat, "deltaclient.unmarshalHeader", "short header")
	}
	sessionID = binary.BigEndian.Uint32(buf[0:4])
	cmd = Command(buf[4])
	length = binary.BigEndian.Uint16(buf[5:7])
	return sessionID, cmd, length, nil
}

// connectPayload renders <UID:4><GID:4><profile-path> (spec §6 "Payload
// of CONNECT is <UID:4><GID:4><profile-path>").
func connectPayload(uid, gid uint32, profilePath string) []byte {
	buf := make([]byte, 8+len(profilePath))
	binary.BigEndian.PutUint32(buf[0:4], uid)
	binary.BigEndian.PutUint32(buf[4:8], gid)
	copy(buf[8:], profilePath)
	return buf
}
