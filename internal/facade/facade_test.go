package facade

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alarmbridge/isecnet-gateway/internal/cache"
	"github.com/alarmbridge/isecnet-gateway/internal/events"
	"github.com/alarmbridge/isecnet-gateway/internal/gwerr"
	"github.com/alarmbridge/isecnet-gateway/internal/isecnet"
	"github.com/alarmbridge/isecnet-gateway/internal/model"
	"github.com/alarmbridge/isecnet-gateway/internal/pool"
	"github.com/alarmbridge/isecnet-gateway/internal/session"
)

// fakeLister counts calls and always returns the same ip_receiver panel
// pointed at a locally-listening fake panel.
type fakeLister struct {
	calls int
	host  string
	port  int
}

func (l *fakeLister) ListPanel(ctx context.Context, accessToken, panelID string) (*model.VendorPanelInfo, error) {
	l.calls++
	return &model.VendorPanelInfo{
		MAC:                       "AABBCCDDEEFF",
		IsIPReceiverServerEnabled: true,
		ReceiverHost:              l.host,
		ReceiverPort:              l.port,
		ReceiverAccount:           "0001122334",
		PartitionIDs:              []string{},
	}, nil
}

// startFakePanel runs a minimal IP-receiver panel: handshake always
// succeeds; every subsequent command gets a scripted reply from replies,
// consumed in order, looping the last one if exhausted.
func startFakePanel(t *testing.T, replies [][]byte) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		buf := make([]byte, 4)
		if _, err := readFullT(conn, buf); err != nil {
			return
		}
		conn.Write([]byte{0x03, 0xE0, 0x01, 0x00})

		// APP_CONNECT is length-prefixed: [len][E4][45][account…][checksum].
		appLen := make([]byte, 1)
		if _, err := readFullT(conn, appLen); err != nil {
			return
		}
		if _, err := readFullT(conn, make([]byte, int(appLen[0])+1)); err != nil {
			return
		}
		conn.Write([]byte{0x03, 0xE4, 0x01, 0x00})

		idx := 0
		for {
			sizeByte := make([]byte, 1)
			if _, err := readFullT(conn, sizeByte); err != nil {
				return
			}
			rest := make([]byte, int(sizeByte[0])+1)
			if _, err := readFullT(conn, rest); err != nil {
				return
			}
			if idx < len(replies) {
				if replies[idx] != nil {
					conn.Write(replies[idx])
				}
				idx++
			} else if len(replies) > 0 && replies[len(replies)-1] != nil {
				conn.Write(replies[len(replies)-1])
			}
		}
	}()

	t.Cleanup(func() { ln.Close() })
	return addr.IP.String(), addr.Port
}

func readFullT(conn net.Conn, buf []byte) (int, error) {
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

func buildV1Status46() []byte {
	data := make([]byte, 44)
	data[0] = 0xE9
	frameBody := append([]byte{44}, data...)
	return append(frameBody, isecnet.ChecksumXORInverted(frameBody))
}

func newTestFacade(t *testing.T, lister *fakeLister) (*Facade, *cache.Cache) {
	t.Helper()
	dir := t.TempDir()
	c, err := cache.New(filepath.Join(dir, "snap.json"), 5*time.Minute)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	p := pool.New(5*time.Minute, time.Minute, session.Config{}, logrus.NewEntry(logrus.New()))
	hub := events.NewHub()

	c.SetToken("sess1", cache.Token{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)})
	c.SetPassword("sess1", "panel1", "1234")

	return New(c, p, lister, hub, logrus.NewEntry(logrus.New())), c
}

func TestConnectionInfoCachedAcrossCalls(t *testing.T) {
	host, port := startFakePanel(t, [][]byte{buildV1Status46()})
	lister := &fakeLister{host: host, port: port}
	f, _ := newTestFacade(t, lister)

	if _, err := f.GetStatus(context.Background(), "sess1", "panel1"); err != nil {
		t.Fatalf("GetStatus 1: %v", err)
	}
	if _, err := f.GetStatus(context.Background(), "sess1", "panel1"); err != nil {
		t.Fatalf("GetStatus 2: %v", err)
	}
	if lister.calls != 1 {
		t.Errorf("lister.calls = %d, want 1 (connection info should be cached)", lister.calls)
	}
}

func TestArmVerifyOpenZones(t *testing.T) {
	statusWithOpenZone := func() []byte {
		data := make([]byte, 44)
		data[0] = 0xE9
		data[1] = 1 << 3 // zone-open bitmap byte for zones 0-7: bit 3 -> zone index 3 open
		frameBody := append([]byte{44}, data...)
		return append(frameBody, isecnet.ChecksumXORInverted(frameBody))
	}()

	// First reply (nil) simulates the arm-verify quirk: no frame within the
	// short ARM timeout. Second reply is the verifying status read.
	host, port := startFakePanel(t, [][]byte{nil, statusWithOpenZone})
	lister := &fakeLister{host: host, port: port}
	f, c := newTestFacade(t, lister)
	c.SetZoneFriendlyName("panel1", 3, "Front Door")

	_, err := f.Arm(context.Background(), "sess1", "panel1", model.ArmAway, nil)
	if err == nil {
		t.Fatal("expected an OpenZones error")
	}
	if gwerr.KindOf(err) != gwerr.OpenZonesErr {
		t.Fatalf("kind = %v, want OpenZonesErr", gwerr.KindOf(err))
	}
	var zerr *gwerr.Error
	if !errors.As(err, &zerr) {
		t.Fatal("expected *gwerr.Error")
	}
	found := false
	for _, z := range zerr.Zones {
		if z.Index == 3 && z.FriendlyName == "Front Door" {
			found = true
		}
	}
	if !found {
		t.Errorf("zones = %+v, want zone 3 with friendly name Front Door", zerr.Zones)
	}
}
