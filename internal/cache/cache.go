// Package cache implements the durable key-value surface of §3: TTL and
// no-TTL sub-maps backed by one in-memory structure and one JSON snapshot
// on disk, written atomically. Grounded on the teacher's
// discovery.Cache.Save/Load (marshal -> write temp -> os.Rename), extended
// from a single flat map to the gateway's six distinct sub-maps.
package cache

import (
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/alarmbridge/isecnet-gateway/internal/model"
)

// Token is a session-id's OAuth token bundle.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Username     string    `json:"username"`
}

type connectionInfoEntry struct {
	Descriptor model.ConnectionDescriptor
	CachedAt   time.Time
}

type lastKnownEntry struct {
	Status      model.AlarmStatus `json:"status"`
	LastUpdated time.Time         `json:"_last_updated"`
}

// snapshot is the exact on-disk JSON shape from §6.
type snapshot struct {
	Tokens            map[string]Token              `json:"tokens"`
	DevicePasswords   map[string]map[string]string  `json:"device_passwords"`
	ZoneFriendlyNames map[string]map[string]string  `json:"zone_friendly_names"`
	LastKnownStatus   map[string]lastKnownEntryJSON `json:"last_known_status"`
}

// lastKnownEntryJSON flattens AlarmStatus fields alongside _last_updated
// for the persisted shape; kept separate from model.AlarmStatus so the
// in-memory type doesn't need JSON tags dictated by the wire format.
type lastKnownEntryJSON struct {
	ModelName   string            `json:"model_name"`
	MAC         string            `json:"mac"`
	IsArmed     bool              `json:"is_armed"`
	ArmMode     string            `json:"arm_mode"`
	IsTriggered bool              `json:"is_triggered"`
	Partitions  []model.Partition `json:"partitions,omitempty"`
	Zones       []model.Zone      `json:"zones,omitempty"`
	Fence       model.FenceState  `json:"fence"`
	LastUpdated time.Time         `json:"_last_updated"`
}

// Cache is the single key-value facade described in C5.
type Cache struct {
	mu sync.Mutex

	path string

	tokens            map[string]Token
	devicePasswords   map[string]map[string]string // session_id -> panel_id -> password
	connectionInfo    map[string]connectionInfoEntry
	partitionsEnabled map[string]model.TriState
	zoneFriendlyNames map[string]map[string]string // panel_id -> zone_index -> name
	lastKnownStatus   map[string]lastKnownEntry

	connectionInfoTTL time.Duration
}

// New constructs a Cache backed by the JSON file at path, loading any
// existing snapshot. A missing file is not an error (fresh install).
func New(path string, connectionInfoTTL time.Duration) (*Cache, error) {
	if connectionInfoTTL == 0 {
		connectionInfoTTL = 5 * time.Minute
	}
	c := &Cache{
		path:              path,
		tokens:            make(map[string]Token),
		devicePasswords:   make(map[string]map[string]string),
		connectionInfo:    make(map[string]connectionInfoEntry),
		partitionsEnabled: make(map[string]model.TriState),
		zoneFriendlyNames: make(map[string]map[string]string),
		lastKnownStatus:   make(map[string]lastKnownEntry),
		connectionInfoTTL: connectionInfoTTL,
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	if snap.Tokens != nil {
		c.tokens = snap.Tokens
	}
	if snap.DevicePasswords != nil {
		c.devicePasswords = snap.DevicePasswords
	}
	if snap.ZoneFriendlyNames != nil {
		c.zoneFriendlyNames = snap.ZoneFriendlyNames
	}
	for panelID, e := range snap.LastKnownStatus {
		c.lastKnownStatus[panelID] = lastKnownEntry{
			Status: model.AlarmStatus{
				ModelName:   e.ModelName,
				MAC:         e.MAC,
				IsArmed:     e.IsArmed,
				ArmMode:     model.ParsePartitionState(e.ArmMode),
				IsTriggered: e.IsTriggered,
				Partitions:  e.Partitions,
				Zones:       e.Zones,
				Fence:       e.Fence,
			},
			LastUpdated: e.LastUpdated,
		}
	}
	return nil
}

// saveLocked performs the atomic snapshot write: serialize, write to a
// sibling temp file, fsync, rename over the target. Caller holds c.mu.
func (c *Cache) saveLocked() error {
	snap := snapshot{
		Tokens:            c.tokens,
		DevicePasswords:   c.devicePasswords,
		ZoneFriendlyNames: c.zoneFriendlyNames,
		LastKnownStatus:   make(map[string]lastKnownEntryJSON, len(c.lastKnownStatus)),
	}
	for panelID, e := range c.lastKnownStatus {
		snap.LastKnownStatus[panelID] = lastKnownEntryJSON{
			ModelName:   e.Status.ModelName,
			MAC:         e.Status.MAC,
			IsArmed:     e.Status.IsArmed,
			ArmMode:     e.Status.ArmMode.String(),
			IsTriggered: e.Status.IsTriggered,
			Partitions:  e.Status.Partitions,
			Zones:       e.Status.Zones,
			Fence:       e.Status.Fence,
			LastUpdated: e.LastUpdated,
		}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	tmp := c.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

// --- Session tokens -------------------------------------------------

func (c *Cache) SetToken(sessionID string, tok Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[sessionID] = tok
	return c.saveLocked()
}

func (c *Cache) GetToken(sessionID string) (Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tok, ok := c.tokens[sessionID]
	if ok && tok.ExpiresAt.Before(time.Now()) {
		delete(c.tokens, sessionID)
		return Token{}, false
	}
	return tok, ok
}

// --- Panel passwords --------------------------------------------------

func (c *Cache) SetPassword(sessionID, panelID, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.devicePasswords[sessionID] == nil {
		c.devicePasswords[sessionID] = make(map[string]string)
	}
	c.devicePasswords[sessionID][panelID] = password
	return c.saveLocked()
}

func (c *Cache) GetPassword(sessionID, panelID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byPanel, ok := c.devicePasswords[sessionID]
	if !ok {
		return "", false
	}
	pwd, ok := byPanel[panelID]
	return pwd, ok
}

// --- Connection info (in-memory only, TTL, never persisted) ----------

func (c *Cache) SetConnectionInfo(panelID string, desc model.ConnectionDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectionInfo[panelID] = connectionInfoEntry{Descriptor: desc, CachedAt: time.Now()}
}

func (c *Cache) GetConnectionInfo(panelID string) (model.ConnectionDescriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.connectionInfo[panelID]
	if !ok {
		return model.ConnectionDescriptor{}, false
	}
	if time.Since(e.CachedAt) > c.connectionInfoTTL {
		delete(c.connectionInfo, panelID)
		return model.ConnectionDescriptor{}, false
	}
	return e.Descriptor, true
}

func (c *Cache) InvalidateConnectionInfo(panelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.connectionInfo, panelID)
}

// --- partitions_enabled (in-memory only, no TTL) ----------------------

func (c *Cache) SetPartitionsEnabled(panelID string, v model.TriState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partitionsEnabled[panelID] = v
}

func (c *Cache) GetPartitionsEnabled(panelID string) model.TriState {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.partitionsEnabled[panelID]
	if !ok {
		return model.Unknown
	}
	return v
}

// --- Zone friendly names (persistent) ---------------------------------

func (c *Cache) SetZoneFriendlyName(panelID string, zoneIndex int, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.zoneFriendlyNames[panelID] == nil {
		c.zoneFriendlyNames[panelID] = make(map[string]string)
	}
	c.zoneFriendlyNames[panelID][itoa(zoneIndex)] = name
	return c.saveLocked()
}

func (c *Cache) GetAllZoneFriendlyNames(panelID string) map[int]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]string)
	for k, v := range c.zoneFriendlyNames[panelID] {
		out[atoi(k)] = v
	}
	return out
}

// --- Last known status (persistent) -----------------------------------

func (c *Cache) SetLastKnownStatus(panelID string, status model.AlarmStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastKnownStatus[panelID] = lastKnownEntry{Status: status, LastUpdated: time.Now()}
	return c.saveLocked()
}

func (c *Cache) GetLastKnownStatus(panelID string) (model.AlarmStatus, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lastKnownStatus[panelID]
	if !ok {
		return model.AlarmStatus{}, time.Time{}, false
	}
	return e.Status, e.LastUpdated, true
}

// Stats reports cardinalities for diagnostics (gatewayctl cache stats).
type Stats struct {
	Tokens            int
	DevicePasswords   int
	ConnectionInfo    int
	PartitionsEnabled int
	ZoneFriendlyNames int
	LastKnownStatus   int
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Tokens:            len(c.tokens),
		DevicePasswords:   len(c.devicePasswords),
		ConnectionInfo:    len(c.connectionInfo),
		PartitionsEnabled: len(c.partitionsEnabled),
		ZoneFriendlyNames: len(c.zoneFriendlyNames),
		LastKnownStatus:   len(c.lastKnownStatus),
	}
}

// SweepExpiredTokens drops any token whose expiry has passed, called
// periodically by the same batch-eviction sweep that C5 specifies for
// TTL keys.
func (c *Cache) SweepExpiredTokens() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for id, tok := range c.tokens {
		if tok.ExpiresAt.Before(now) {
			delete(c.tokens, id)
		}
	}
}

func itoa(i int) string { return strconv.Itoa(i) }

func atoi(s string) int {
	i, _ := strconv.Atoi(s)
	return i
}
