package pool

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alarmbridge/isecnet-gateway/internal/model"
	"github.com/alarmbridge/isecnet-gateway/internal/session"
)

// startFakeIPReceiver accepts every incoming connection and on each one
// always completes the 2-step ip_receiver handshake (GET_BYTE,
// APP_CONNECT), then idles.
func startFakeIPReceiver(t *testing.T) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				for i := 0; i < 2; i++ {
					sizeByte := make([]byte, 1)
					if _, err := readFullPool(c, sizeByte); err != nil {
						return
					}
					rest := make([]byte, int(sizeByte[0])+1)
					if _, err := readFullPool(c, rest); err != nil {
						return
					}
					c.Write([]byte{0x03, 0xE0 + byte(i)*4, 0x01, 0x00})
				}
				io := make([]byte, 256)
				for {
					if _, err := c.Read(io); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	t.Cleanup(func() { ln.Close() })
	return addr.IP.String(), addr.Port
}

func readFullPool(conn net.Conn, buf []byte) (int, error) {
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

func testDescriptor(host string, port int) Descriptor {
	return Descriptor{
		MAC:             "AABBCCDDEEFF",
		Transport:       model.TransportIPReceiver,
		ReceiverHost:    host,
		ReceiverPort:    port,
		ReceiverAccount: "0001122334",
		Password:        "1234",
	}
}

func TestAcquireReusesAuthorizedSession(t *testing.T) {
	host, port := startFakeIPReceiver(t)
	p := New(5*time.Minute, time.Minute, session.Config{}, logrus.NewEntry(logrus.New()))

	desc := testDescriptor(host, port)
	s1, err := p.Acquire(context.Background(), "panel1", desc, false)
	if err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}
	s2, err := p.Acquire(context.Background(), "panel1", desc, false)
	if err != nil {
		t.Fatalf("Acquire 2: %v", err)
	}
	if s1 != s2 {
		t.Error("expected the second Acquire to reuse the same session")
	}
	if p.Stats() != 1 {
		t.Errorf("Stats() = %d, want 1", p.Stats())
	}
}

func TestAcquireRebuildsOnDescriptorChange(t *testing.T) {
	host1, port1 := startFakeIPReceiver(t)
	host2, port2 := startFakeIPReceiver(t)
	p := New(5*time.Minute, time.Minute, session.Config{}, logrus.NewEntry(logrus.New()))

	s1, err := p.Acquire(context.Background(), "panel1", testDescriptor(host1, port1), false)
	if err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}
	s2, err := p.Acquire(context.Background(), "panel1", testDescriptor(host2, port2), false)
	if err != nil {
		t.Fatalf("Acquire 2: %v", err)
	}
	if s1 == s2 {
		t.Error("expected a descriptor change to force a new session")
	}
}

func TestEvictForcesRebuild(t *testing.T) {
	host, port := startFakeIPReceiver(t)
	p := New(5*time.Minute, time.Minute, session.Config{}, logrus.NewEntry(logrus.New()))

	desc := testDescriptor(host, port)
	s1, err := p.Acquire(context.Background(), "panel1", desc, false)
	if err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}
	p.Evict("panel1")
	if p.Stats() != 0 {
		t.Errorf("Stats() after Evict = %d, want 0", p.Stats())
	}
	s2, err := p.Acquire(context.Background(), "panel1", desc, false)
	if err != nil {
		t.Fatalf("Acquire after evict: %v", err)
	}
	if s1 == s2 {
		t.Error("expected a fresh session after Evict")
	}
}
