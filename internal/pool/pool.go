// Package pool implements the connection pool that owns one protocol
// session per panel: acquire/reuse, idle eviction, keep-alive sweep, forced
// reconnect, and orderly shutdown. Grounded on the teacher's
// sol.Manager — a map of live sessions guarded by one RWMutex plus a
// background health-check goroutine — generalized from one SOL console per
// BMC host to one ISECNet session per alarm panel.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alarmbridge/isecnet-gateway/internal/model"
	"github.com/alarmbridge/isecnet-gateway/internal/session"
)

// Descriptor is the minimal routing info needed to (re)build a session,
// mirroring model.ConnectionDescriptor plus the password.
type Descriptor struct {
	MAC             string
	Transport       model.TransportMode
	ReceiverHost    string
	ReceiverPort    int
	ReceiverAccount string
	Password        string
}

func (d Descriptor) addr() string {
	if d.Transport == model.TransportIPReceiver {
		return fmt.Sprintf("%s:%d", d.ReceiverHost, d.ReceiverPort)
	}
	return cloudRelayAddr
}

// cloudRelayAddr is the fixed vendor cloud relay endpoint. In production
// this would come from configuration; it's a constant here because every
// panel on the cloud transport dials the same relay.
const cloudRelayAddr = "isecnetrelay.vendor.example:9009"

// entry pairs a session with the descriptor it was built from, so Acquire
// can detect a descriptor change (invariant 3: a live session disagreeing
// with a fresh descriptor must be torn down before reuse).
type entry struct {
	sess *session.Session
	desc Descriptor
}

// Pool owns panel_id -> session.
type Pool struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	idleThreshold time.Duration
	sweepInterval time.Duration
	sessionCfg    session.Config

	log *logrus.Entry

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Pool. sessionCfg supplies the protocol timing knobs
// (recv/arm timeouts) every built session starts from; Acquire fills in
// the per-panel Transport/MAC/ReceiverAccount/Password fields. Call Start
// to begin the keep-alive/idle sweep.
func New(idleThreshold, sweepInterval time.Duration, sessionCfg session.Config, log *logrus.Entry) *Pool {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if idleThreshold == 0 {
		idleThreshold = 5 * time.Minute
	}
	if sweepInterval == 0 {
		sweepInterval = 60 * time.Second
	}
	return &Pool{
		sessions:      make(map[string]*entry),
		idleThreshold: idleThreshold,
		sweepInterval: sweepInterval,
		sessionCfg:    sessionCfg,
		log:           log,
	}
}

// Start launches the background sweep goroutine.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	go p.sweepLoop(ctx)
}

// Acquire returns an authorized session for panelID, reusing an existing
// one when it matches desc and is still authorized, otherwise tearing down
// any stale session and building a fresh one. force, when true, always
// rebuilds (used after an I/O error observed by the caller).
func (p *Pool) Acquire(ctx context.Context, panelID string, desc Descriptor, force bool) (*session.Session, error) {
	p.mu.Lock()
	existing, ok := p.sessions[panelID]
	if ok {
		stale := force || existing.sess.Stage() != session.Authorized || existing.desc != desc
		if !stale {
			p.mu.Unlock()
			return existing.sess, nil
		}
		delete(p.sessions, panelID)
		p.mu.Unlock()
		existing.sess.Close()
	} else {
		p.mu.Unlock()
	}

	cfg := p.sessionCfg
	cfg.Transport = desc.Transport
	cfg.MAC = desc.MAC
	cfg.ReceiverAccount = desc.ReceiverAccount
	cfg.Password = desc.Password
	sess := session.New(cfg, p.log)
	if err := sess.Connect(ctx, desc.addr()); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.sessions[panelID] = &entry{sess: sess, desc: desc}
	p.mu.Unlock()
	return sess, nil
}

// Evict tears down and removes any live session for panelID, regardless of
// stage. Used by C4 after observing an I/O error so the next Acquire
// rebuilds from scratch.
func (p *Pool) Evict(panelID string) {
	p.mu.Lock()
	e, ok := p.sessions[panelID]
	if ok {
		delete(p.sessions, panelID)
	}
	p.mu.Unlock()
	if ok {
		e.sess.Close()
	}
}

// Stats reports the number of live sessions, for diagnostics.
func (p *Pool) Stats() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

func (p *Pool) sweepLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweepOnce(ctx)
		}
	}
}

func (p *Pool) sweepOnce(ctx context.Context) {
	now := time.Now()
	p.mu.RLock()
	stale := make([]string, 0)
	keepAlive := make([]*session.Session, 0)
	for id, e := range p.sessions {
		idle := now.Sub(e.sess.LastActivity())
		if idle > p.idleThreshold {
			stale = append(stale, id)
			continue
		}
		if e.desc.Transport == model.TransportCloud && e.sess.Stage() == session.Authorized {
			keepAlive = append(keepAlive, e.sess)
		}
	}
	p.mu.RUnlock()

	for _, id := range stale {
		p.log.WithField("panel_id", id).Info("evicting idle panel session")
		p.Evict(id)
	}
	for _, sess := range keepAlive {
		if err := sess.SendKeepAlive(ctx); err != nil {
			p.log.WithError(err).Debug("keep-alive send failed")
		}
	}
}

// Shutdown sends a best-effort disconnect on every authorized session,
// closes all sockets, and stops the sweep goroutine.
func (p *Pool) Shutdown(ctx context.Context) {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	entries := p.sessions
	p.sessions = make(map[string]*entry)
	p.mu.Unlock()

	for id, e := range entries {
		if err := e.sess.Disconnect(ctx); err != nil {
			p.log.WithField("panel_id", id).WithError(err).Debug("disconnect on shutdown")
		}
	}
}
