// Package session implements one ISECNet protocol session per panel: it
// owns a TCP socket, drives the handshake state machine described in the
// design notes, serializes command/response pairs under a single mutex,
// and parses status replies into a model.AlarmStatus.
package session

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alarmbridge/isecnet-gateway/internal/gwerr"
	"github.com/alarmbridge/isecnet-gateway/internal/isecnet"
	"github.com/alarmbridge/isecnet-gateway/internal/model"
)

// Stage is a protocol session's position in the handshake state machine.
type Stage int

const (
	Disconnected Stage = iota
	TCPOpen
	ServerOK
	AppOK
	Authorized
)

func (s Stage) String() string {
	switch s {
	case TCPOpen:
		return "tcp_open"
	case ServerOK:
		return "server_ok"
	case AppOK:
		return "app_ok"
	case Authorized:
		return "authorized"
	default:
		return "disconnected"
	}
}

// Config parameterizes one Session. Timeouts are kept configurable per the
// open question on arm-verify timing: a live panel may need different
// values than these defaults.
type Config struct {
	Transport       model.TransportMode
	MAC             string
	ReceiverAccount string
	Password        string

	DialTimeout    time.Duration
	RecvTimeout    time.Duration // default 10s
	ArmRecvTimeout time.Duration // default 3s
	ArmVerifySleep time.Duration // default 500ms; stored only, read neither here nor by the facade
}

func (c Config) withDefaults() Config {
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.RecvTimeout == 0 {
		c.RecvTimeout = 10 * time.Second
	}
	if c.ArmRecvTimeout == 0 {
		c.ArmRecvTimeout = 3 * time.Second
	}
	if c.ArmVerifySleep == 0 {
		c.ArmVerifySleep = 500 * time.Millisecond
	}
	return c
}

// Session is one protocol session, authorized state from which commands
// may be issued, as the design mandates. Invariant: at most one in-flight
// request per session, enforced by mu.
type Session struct {
	mu sync.Mutex

	cfg   Config
	conn  net.Conn
	stage Stage

	sourceID [2]byte
	xorByte  *byte

	lastActivity time.Time
	log          *logrus.Entry
}

// New constructs a Session in the Disconnected stage.
func New(cfg Config, log *logrus.Entry) *Session {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Session{
		cfg:   cfg.withDefaults(),
		stage: Disconnected,
		log:   log.WithField("mac", cfg.MAC),
	}
}

// Stage returns the session's current stage under lock.
func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// LastActivity returns the last successful send/receive time of a
// handshake or command frame; keep-alive frames are not counted.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Connect dials addr and drives the full handshake for the configured
// transport. On any failure the session is left Disconnected and the
// socket is closed.
func (s *Session) Connect(ctx context.Context, addr string) error {
	conn, err := net.DialTimeout("tcp", addr, s.cfg.DialTimeout)
	if err != nil {
		return gwerr.Wrap(gwerr.ConnectionUnavailable, "dial panel", err)
	}
	return s.ConnectConn(ctx, conn)
}

// ConnectConn drives the handshake over an already-open net.Conn. Exported
// separately so tests can hand it a scripted in-memory peer.
func (s *Session) ConnectConn(ctx context.Context, conn net.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn = conn
	s.stage = TCPOpen
	s.lastActivity = time.Now()

	var err error
	if s.cfg.Transport == model.TransportCloud {
		err = s.handshakeCloud(ctx)
	} else {
		err = s.handshakeIPReceiver(ctx)
	}
	if err != nil {
		s.teardownLocked()
		return err
	}
	s.stage = Authorized
	s.log.WithField("transport", s.cfg.Transport).Info("panel session authorized")
	return nil
}

// Close tears down the socket unconditionally.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teardownLocked()
}

func (s *Session) teardownLocked() error {
	s.stage = Disconnected
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

// Disconnect sends a best-effort V2 DISCONNECT before closing, used during
// orderly pool shutdown.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage == Authorized && s.cfg.Transport == model.TransportCloud {
		frame := isecnet.EncodeV2(isecnet.CmdDisconnect, []byte{0x00}, s.sourceID, nil)
		_ = s.writeLocked(frame) // best-effort, ignore failures
	}
	return s.teardownLocked()
}
