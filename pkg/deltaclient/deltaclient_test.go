package deltaclient

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeDaemon is a minimal mirroring daemon stub: it accepts one
// connection, reads frames, and ACKs everything except a payload
// containing the literal string "reject".
func fakeDaemon(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			header := make([]byte, headerSize)
			if _, err := readFull(conn, header); err != nil {
				return
			}
			sessionID, cmd, length, err := unmarshalHeader(header)
			if err != nil {
				return
			}
			payload := make([]byte, length)
			if length > 0 {
				if _, err := readFull(conn, payload); err != nil {
					return
				}
			}
			reply := CmdAck
			if string(payload) == "reject" {
				reply = CmdNack
			}
			buf, _ := marshalFrame(sessionID, reply, nil)
			conn.Write(buf)
			if cmd == CmdQuit {
				return
			}
		}
	}()

	return ln.Addr().String()
}

func TestConnectAndSendDelta(t *testing.T) {
	addr := fakeDaemon(t)
	c, err := New(Config{Addr: addr, ProfilePath: "/etc/hzDelta.d/app.adp", Timeout: 2 * time.Second})
	require.NoError(t, err)
	require.NoError(t, c.Start())
	require.True(t, c.Connected())

	require.NoError(t, c.SendDelta([]byte("@c21.o1.m501=bolt\n")))
	require.NoError(t, c.Stop())
}

func TestNackIsSwallowed(t *testing.T) {
	addr := fakeDaemon(t)
	c, err := New(Config{Addr: addr, ProfilePath: "/etc/hzDelta.d/app.adp", Timeout: 2 * time.Second})
	require.NoError(t, err)
	require.NoError(t, c.Start())

	err = c.NotifyQueuedFile("reject")
	require.NoError(t, err) // NACK never surfaces as a caller error
	require.NoError(t, c.Stop())
}

func TestFrameRoundTrip(t *testing.T) {
	buf, err := marshalFrame(42, CmdDelta, []byte("payload"))
	require.NoError(t, err)
	sessionID, cmd, length, err := unmarshalHeader(buf[:headerSize])
	require.NoError(t, err)
	require.Equal(t, uint32(42), sessionID)
	require.Equal(t, CmdDelta, cmd)
	require.Equal(t, uint16(7), length)
}

func TestConnectPayloadLayout(t *testing.T) {
	p := connectPayload(1000, 1000, "/etc/hzDelta.d/app.adp")
	require.Len(t, p, 8+len("/etc/hzDelta.d/app.adp"))
	require.Equal(t, "/etc/hzDelta.d/app.adp", string(p[8:]))
}
