package session

import (
	"io"
	"time"

	"github.com/alarmbridge/isecnet-gateway/internal/gwerr"
	"github.com/alarmbridge/isecnet-gateway/internal/isecnet"
)

// writeLocked writes a fully-built frame. Caller must hold s.mu.
func (s *Session) writeLocked(frame []byte) error {
	if s.conn == nil {
		return gwerr.New(gwerr.ConnectionUnavailable, "no socket")
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.RecvTimeout)); err != nil {
		return gwerr.Wrap(gwerr.ConnectionUnavailable, "set write deadline", err)
	}
	if _, err := s.conn.Write(frame); err != nil {
		return gwerr.Wrap(gwerr.ConnectionUnavailable, "write panel frame", err)
	}
	s.lastActivity = time.Now()
	return nil
}

// readExactLocked reads exactly n bytes within timeout. Caller must hold
// s.mu.
func (s *Session) readExactLocked(n int, timeout time.Duration) ([]byte, error) {
	if s.conn == nil {
		return nil, gwerr.New(gwerr.ConnectionUnavailable, "no socket")
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, gwerr.Wrap(gwerr.ConnectionUnavailable, "set read deadline", err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.conn, buf); err != nil {
		return nil, gwerr.Wrap(gwerr.ConnectionUnavailable, "read panel frame", err)
	}
	s.lastActivity = time.Now()
	return buf, nil
}

// readHandshakeFrameLocked reads a short fixed-shape handshake reply (the
// GET_BYTE/APP_CONNECT exchanges are not V1/V2 shaped). n is the full
// expected length.
func (s *Session) readHandshakeFrameLocked(n int) ([]byte, error) {
	return s.readExactLocked(n, s.cfg.RecvTimeout)
}

// readV2FrameLocked reads one cloud-relay frame. V2 frames are
// self-describing: read the fixed 6-byte header (dest+src+size), then the
// remaining (size-2) payload bytes plus the 1-byte checksum. xorByte is
// passed to DecodeV2 unchanged; the size field is taken from the header
// bytes as received, without undoing any obfuscation. Every caller passes
// nil: the APP_CONNECT reply, like every other reply, is read in the clear.
func (s *Session) readV2FrameLocked(timeout time.Duration, xorByte *byte) (*isecnet.V2Frame, error) {
	head, err := s.readExactLocked(6, timeout)
	if err != nil {
		return nil, err
	}
	size := int(head[4])<<8 | int(head[5])
	if size < 2 {
		return nil, gwerr.New(gwerr.ProtocolError, "v2 size field too small")
	}
	rest, err := s.readExactLocked(size+1, timeout) // cmd+payload (size bytes) + 1 checksum byte
	if err != nil {
		return nil, err
	}
	raw := append(append([]byte{}, head...), rest...)
	return isecnet.DecodeV2(raw, xorByte)
}

// readV1FrameLocked reads one IP-receiver response: [size:1][data:size][checksum:1].
// Returns the parsed frame, the total raw frame length (used for the
// 46/96+ byte dump classification), and error.
func (s *Session) readV1FrameLocked(timeout time.Duration) (*isecnet.V1Frame, int, error) {
	sizeByte, err := s.readExactLocked(1, timeout)
	if err != nil {
		return nil, 0, err
	}
	size := int(sizeByte[0])
	rest, err := s.readExactLocked(size+1, timeout)
	if err != nil {
		return nil, 0, err
	}
	raw := append(append([]byte{}, sizeByte...), rest...)
	body := raw[:len(raw)-1]
	if got, want := raw[len(raw)-1], isecnet.ChecksumXORInverted(body); got != want {
		return nil, 0, gwerr.New(gwerr.ProtocolError, "v1 checksum mismatch")
	}
	data := raw[1 : len(raw)-1]
	frame, err := isecnet.DecodeV1(data)
	if err != nil {
		return nil, 0, err
	}
	return frame, len(raw), nil
}
