package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alarmbridge/isecnet-gateway/internal/gwerr"
	"github.com/alarmbridge/isecnet-gateway/internal/isecnet"
	"github.com/alarmbridge/isecnet-gateway/internal/model"
)

// v2ScriptedPeer reads one full V2 frame and writes back the next response
// of the script, once per step. It drives a net.Pipe end opposite the
// Session under test.
func v2ScriptedPeer(t *testing.T, conn net.Conn, responses [][]byte) {
	t.Helper()
	go func() {
		for _, resp := range responses {
			hdr := make([]byte, 6)
			if _, err := readFull(conn, hdr); err != nil {
				return
			}
			// dest is always 00 00 before obfuscation, so hdr[0] is the XOR
			// byte of an obfuscated frame (APP_CONNECT) and 0 otherwise.
			k := hdr[0]
			size := int(hdr[4]^k)<<8 | int(hdr[5]^k)
			rest := make([]byte, size+1)
			if _, err := readFull(conn, rest); err != nil {
				return
			}
			if _, err := conn.Write(resp); err != nil {
				return
			}
		}
	}()
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

func buildV2Reply(cmd uint16, src [2]byte, payload []byte) []byte {
	return isecnet.EncodeV2(cmd, payload, src, nil)
}

func TestCloudHandshakeSuccess(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	connectReply := buildV2Reply(0, [2]byte{0, 0}, []byte{0x42})
	appReply := buildV2Reply(0, [2]byte{0, 0}, []byte{0x00, 0xAA, 0xBB})
	authReply := buildV2Reply(0, [2]byte{0xAA, 0xBB}, []byte{0x00})
	v2ScriptedPeer(t, serverConn, [][]byte{connectReply, appReply, authReply})

	s := New(Config{Transport: model.TransportCloud, MAC: "AABBCCDDEEFF", Password: "123456"}, nil)
	if err := s.ConnectConn(context.Background(), clientConn); err != nil {
		t.Fatalf("ConnectConn: %v", err)
	}
	if s.Stage() != Authorized {
		t.Fatalf("stage = %v, want Authorized", s.Stage())
	}
	if s.sourceID != [2]byte{0xAA, 0xBB} {
		t.Errorf("sourceID = %v, want {0xAA, 0xBB}", s.sourceID)
	}
}

func TestCloudHandshakeCentralOffline(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	connectReply := buildV2Reply(0, [2]byte{0, 0}, []byte{0x42})
	appReply := buildV2Reply(0, [2]byte{0, 0}, []byte{0x04, 0x00, 0x00})
	v2ScriptedPeer(t, serverConn, [][]byte{connectReply, appReply})

	s := New(Config{Transport: model.TransportCloud, MAC: "AABBCCDDEEFF", Password: "123456"}, nil)
	err := s.ConnectConn(context.Background(), clientConn)
	if err == nil {
		t.Fatal("expected error")
	}
	if gwerr.KindOf(err) != gwerr.ConnectionUnavailable {
		t.Errorf("kind = %v, want ConnectionUnavailable", gwerr.KindOf(err))
	}
	if s.Stage() != Disconnected {
		t.Errorf("stage = %v, want Disconnected", s.Stage())
	}
}

func TestIPReceiverHandshakeSuccess(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	go func() {
		buf := make([]byte, 4)
		if _, err := readFull(serverConn, buf); err != nil {
			return
		}
		serverConn.Write([]byte{0x03, 0xE0, 0x01, 0x00})

		buf2 := make([]byte, 64)
		n, err := serverConn.Read(buf2)
		if err != nil || n == 0 {
			return
		}
		serverConn.Write([]byte{0x03, 0xE4, 0x01, 0x00})
	}()

	s := New(Config{Transport: model.TransportIPReceiver, MAC: "AABBCCDDEEFF", Password: "1234", ReceiverAccount: "0001122334"}, nil)
	if err := s.ConnectConn(context.Background(), clientConn); err != nil {
		t.Fatalf("ConnectConn: %v", err)
	}
	if s.Stage() != Authorized {
		t.Fatalf("stage = %v, want Authorized", s.Stage())
	}
}

func TestV1ArmReturnsPartialStatusAsSuccess(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	s := New(Config{Transport: model.TransportIPReceiver, MAC: "AABBCCDDEEFF", Password: "1234"}, nil)
	forceAuthorized(s, clientConn)

	go func() {
		buf := make([]byte, 256)
		n, err := serverConn.Read(buf)
		if err != nil || n == 0 {
			return
		}
		data := make([]byte, 44)
		data[0] = 0xE9
		reply := make([]byte, 0, 46)
		reply = append(reply, 44)
		reply = append(reply, data...)
		reply = append(reply, isecnet.ChecksumXORInverted(reply))
		serverConn.Write(reply)
	}()

	idx := 0
	result, _, err := s.Arm(context.Background(), model.ArmAway, &idx)
	if err != nil {
		t.Fatalf("Arm: %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
}

func TestV1ArmNoPartitionsError(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	s := New(Config{Transport: model.TransportIPReceiver, MAC: "AABBCCDDEEFF", Password: "1234"}, nil)
	forceAuthorized(s, clientConn)

	go func() {
		buf := make([]byte, 256)
		n, err := serverConn.Read(buf)
		if err != nil || n == 0 {
			return
		}
		body := []byte{0xE9, isecnet.V1StatusNoPartitions}
		frameBody := append([]byte{byte(len(body))}, body...)
		reply := append(frameBody, isecnet.ChecksumXORInverted(frameBody))
		serverConn.Write(reply)
	}()

	idx := 0
	_, learned, err := s.Arm(context.Background(), model.ArmAway, &idx)
	if err == nil {
		t.Fatal("expected error")
	}
	if gwerr.KindOf(err) != gwerr.NoPartitions {
		t.Errorf("kind = %v, want NoPartitions", gwerr.KindOf(err))
	}
	if learned != model.False {
		t.Errorf("learned partitions_enabled = %v, want False", learned)
	}
}

func TestV1ArmNoReplyIsUnverifiedSuccess(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	s := New(Config{
		Transport:      model.TransportIPReceiver,
		MAC:            "AABBCCDDEEFF",
		Password:       "1234",
		ArmRecvTimeout: 50 * time.Millisecond,
	}, nil)
	forceAuthorized(s, clientConn)

	go func() {
		buf := make([]byte, 256)
		serverConn.Read(buf) // consume the request, never reply
	}()

	idx := 0
	result, _, err := s.Arm(context.Background(), model.ArmAway, &idx)
	if err != nil {
		t.Fatalf("Arm: %v", err)
	}
	if !result.Success || result.Message != "command sent, unverified" {
		t.Errorf("result = %+v, want unverified success", result)
	}
	if s.Stage() != Authorized {
		t.Errorf("stage = %v, want Authorized (session must survive a quiet ARM)", s.Stage())
	}
}

// forceAuthorized sets a session directly to Authorized over an existing
// conn, bypassing the handshake, for tests that only exercise command
// dispatch.
func forceAuthorized(s *Session, conn net.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.stage = Authorized
	s.lastActivity = time.Now()
	s.mu.Unlock()
}
