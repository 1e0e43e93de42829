package deltaclient

import (
	"crypto/rand"
	"encoding/binary"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hadronzoo/deltadb/pkg/dberr"
	"github.com/hadronzoo/deltadb/pkg/log"
	"github.com/hadronzoo/deltadb/pkg/metrics"
)

// defaultTimeout is the send/receive timeout (spec §4.11 "defaulting to
// 30 s").
const defaultTimeout = 30 * time.Second

// Config configures one Client instance.
type Config struct {
	Addr        string // host:port of the mirroring daemon; empty reads ClusterConfigPath
	ProfilePath string // full ADP profile path, sent on CONNECT
	Timeout     time.Duration
}

// Client is a single long-lived connection to the local mirroring daemon.
// Repositories attach it via repository.DeltaSink and call SendDelta for
// every flushed batch of delta lines.
type Client struct {
	mu sync.Mutex

	addr        string
	profilePath string
	timeout     time.Duration
	sessionID   uint32
	sessionTag  string // for logging only, not wire-visible

	conn      net.Conn
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New constructs a Client. It does not connect until Start is called.
func New(cfg Config) (*Client, error) {
	addr := cfg.Addr
	if addr == "" {
		a, err := ReadClusterAddr(ClusterConfigPath)
		if err != nil {
			return nil, err
		}
		addr = a
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		addr:        addr,
		profilePath: cfg.ProfilePath,
		timeout:     timeout,
		sessionID:   randomSessionID(),
		sessionTag:  uuid.NewString(),
		stopCh:      make(chan struct{}),
	}, nil
}

func randomSessionID() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint32(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint32(b[:])
}

// Start dials the mirroring daemon and sends CONNECT. Modeled on the
// teacher's worker connection lifecycle (pkg/worker.Worker.Start): dial,
// register, then let the caller drive the session until Stop.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		metrics.DeltaClientConnected.Set(0)
		return dberr.Wrap(dberr.KindIO, "deltaclient.Connect", "dial mirror daemon", err)
	}
	c.conn = conn

	payload := connectPayload(uint32(os.Getuid()), uint32(os.Getgid()), c.profilePath)
	if err := c.sendLocked(CmdConnect, payload); err != nil {
		conn.Close()
		c.conn = nil
		return err
	}
	if err := c.awaitAckLocked(CmdConnect); err != nil {
		conn.Close()
		c.conn = nil
		return err
	}

	c.connected = true
	metrics.DeltaClientConnected.Set(1)
	log.Logger.Info().Str("addr", c.addr).Str("session", c.sessionTag).Msg("delta client connected")
	return nil
}

// reconnect closes any existing connection and retries connectLocked
// once; callers that need a connection for an operation use this so a
// daemon restart during the process's lifetime is survivable without
// manual intervention.
func (c *Client) reconnectLocked() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	return c.connectLocked()
}

// Stop sends QUIT and closes the connection. Safe to call more than once.
func (c *Client) Stop() error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.connected {
			_ = c.sendLocked(CmdQuit, nil)
		}
		if c.conn != nil {
			err = c.conn.Close()
			c.conn = nil
		}
		c.connected = false
		metrics.DeltaClientConnected.Set(0)
	})
	return err
}

// SendDelta forwards exactly the bytes a repository just flushed to its
// own delta log (spec §4.8 step 7 / §4.11 "DELTA"). Implements
// repository.DeltaSink.
func (c *Client) SendDelta(data []byte) error {
	return c.sendCommand(CmdDelta, data)
}

// NotifyQueuedFile sends QUEFILE after a blob has been uploaded to a
// shared store the daemon also mirrors.
func (c *Client) NotifyQueuedFile(name string) error {
	return c.sendCommand(CmdQuefile, []byte(name))
}

// NotifyDeletedFile sends DELFILE.
func (c *Client) NotifyDeletedFile(name string) error {
	return c.sendCommand(CmdDelfile, []byte(name))
}

// sendCommand sends one command, reconnecting once on failure, and treats
// a NACK as best-effort: logged, never returned as an error to the caller
// (spec §4.11 "NACK is logged but does not fail the originating database
// operation").
func (c *Client) sendCommand(cmd Command, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		if err := c.connectLocked(); err != nil {
			return err
		}
	}

	if err := c.sendLocked(cmd, payload); err != nil {
		if rerr := c.reconnectLocked(); rerr != nil {
			return err
		}
		if err := c.sendLocked(cmd, payload); err != nil {
			return err
		}
	}

	metrics.DeltaClientSentTotal.WithLabelValues(cmd.String()).Inc()

	if err := c.awaitAckLocked(cmd); err != nil {
		if dberr.Is(err, dberr.KindIO) {
			c.conn.Close()
			c.conn = nil
			c.connected = false
			metrics.DeltaClientConnected.Set(0)
			return err
		}
		// NACK: logged by awaitAckLocked, swallowed here.
		return nil
	}
	return nil
}

func (c *Client) sendLocked(cmd Command, payload []byte) error {
	buf, err := marshalFrame(c.sessionID, cmd, payload)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if _, err := c.conn.Write(buf); err != nil {
		return dberr.Wrap(dberr.KindIO, "deltaclient.send", "write frame", err)
	}
	return nil
}

// awaitAckLocked reads one response frame and returns nil on ACK, a
// KindSequence error (logged NACK, not fatal) on NACK, or a KindIO error
// on timeout/read failure (spec §4.11 "on timeout the current request
// fails with send- or recv-fail and the connection is reset").
func (c *Client) awaitAckLocked(forCmd Command) error {
	c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	header := make([]byte, headerSize)
	if _, err := readFull(c.conn, header); err != nil {
		return dberr.Wrap(dberr.KindIO, "deltaclient.recv", "read ack header", err)
	}
	_, cmd, length, err := unmarshalHeader(header)
	if err != nil {
		return err
	}
	if length > 0 {
		payload := make([]byte, length)
		if _, err := readFull(c.conn, payload); err != nil {
			return dberr.Wrap(dberr.KindIO, "deltaclient.recv", "read ack payload", err)
		}
	}
	if cmd == CmdNack {
		metrics.DeltaClientNacksTotal.WithLabelValues(forCmd.String()).Inc()
		log.Logger.Warn().Str("command", forCmd.String()).Msg("mirror daemon nacked")
		return dberr.New(dberr.KindSequence, "deltaclient.recv", "mirror daemon returned NACK")
	}
	return nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Connected reports whether the client currently holds a live connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
