package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/alarmbridge/isecnet-gateway/internal/model"
)

func TestConnectionInfoTTLExpiry(t *testing.T) {
	dir := t.TempDir()
	c, err := New(filepath.Join(dir, "snapshot.json"), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.SetConnectionInfo("panel1", model.ConnectionDescriptor{MAC: "AABBCC"})
	if _, ok := c.GetConnectionInfo("panel1"); !ok {
		t.Fatal("expected cache hit immediately after set")
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.GetConnectionInfo("panel1"); ok {
		t.Error("expected cache miss after TTL expiry")
	}
}

func TestPartitionsEnabledNoTTL(t *testing.T) {
	dir := t.TempDir()
	c, err := New(filepath.Join(dir, "snapshot.json"), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.GetPartitionsEnabled("panel1"); got != model.Unknown {
		t.Errorf("initial = %v, want Unknown", got)
	}
	c.SetPartitionsEnabled("panel1", model.False)
	time.Sleep(5 * time.Millisecond)
	if got := c.GetPartitionsEnabled("panel1"); got != model.False {
		t.Errorf("after set = %v, want False", got)
	}
}

func TestAtomicSnapshotSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	c, err := New(path, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.SetPassword("sess1", "panel1", "1234"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if err := c.SetZoneFriendlyName("panel1", 3, "Front Door"); err != nil {
		t.Fatalf("SetZoneFriendlyName: %v", err)
	}
	if err := c.SetLastKnownStatus("panel1", model.AlarmStatus{MAC: "AABBCC", IsArmed: true}); err != nil {
		t.Fatalf("SetLastKnownStatus: %v", err)
	}

	reloaded, err := New(path, 0)
	if err != nil {
		t.Fatalf("reload New: %v", err)
	}
	if pwd, ok := reloaded.GetPassword("sess1", "panel1"); !ok || pwd != "1234" {
		t.Errorf("password = %q, %v, want 1234, true", pwd, ok)
	}
	names := reloaded.GetAllZoneFriendlyNames("panel1")
	if names[3] != "Front Door" {
		t.Errorf("zone name = %q, want Front Door", names[3])
	}
	status, _, ok := reloaded.GetLastKnownStatus("panel1")
	if !ok || !status.IsArmed {
		t.Errorf("last known status = %+v, %v, want IsArmed=true", status, ok)
	}
}

func TestStats(t *testing.T) {
	dir := t.TempDir()
	c, err := New(filepath.Join(dir, "snapshot.json"), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.SetPassword("s1", "p1", "1234")
	c.SetConnectionInfo("p1", model.ConnectionDescriptor{})
	stats := c.Stats()
	if stats.DevicePasswords != 1 {
		t.Errorf("DevicePasswords = %d, want 1", stats.DevicePasswords)
	}
	if stats.ConnectionInfo != 1 {
		t.Errorf("ConnectionInfo = %d, want 1", stats.ConnectionInfo)
	}
}
