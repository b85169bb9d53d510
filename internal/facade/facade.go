// Package facade implements the command facade (C4): the surface the
// external HTTP layer calls into. It resolves a panel id to connection
// info (cache, else vendor cloud), threads commands through the
// connection pool, applies command-specific quirks (arm-verify,
// partition-byte learning, open-zone enumeration), and updates the
// durable caches.
package facade

import (
	"context"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alarmbridge/isecnet-gateway/internal/cache"
	"github.com/alarmbridge/isecnet-gateway/internal/cloudapi"
	"github.com/alarmbridge/isecnet-gateway/internal/events"
	"github.com/alarmbridge/isecnet-gateway/internal/gwerr"
	"github.com/alarmbridge/isecnet-gateway/internal/model"
	"github.com/alarmbridge/isecnet-gateway/internal/pool"
	"github.com/alarmbridge/isecnet-gateway/internal/session"
)

// connectionErrorPattern reclassifies any failure whose message looks
// connection-related, so callers can show a "panel busy/offline" hint
// even when the underlying error didn't originate as gwerr.ConnectionUnavailable.
var connectionErrorPattern = regexp.MustCompile(`(?i)busy|offline|timeout|connection|not connected|connect`)

// Facade is the entry point consumed by internal/httpapi.
type Facade struct {
	cache  *cache.Cache
	pool   *pool.Pool
	lister cloudapi.Lister
	hub    *events.Hub
	log    *logrus.Entry
}

// New constructs a Facade.
func New(c *cache.Cache, p *pool.Pool, lister cloudapi.Lister, hub *events.Hub, log *logrus.Entry) *Facade {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Facade{cache: c, pool: p, lister: lister, hub: hub, log: log}
}

// resolved bundles everything the preamble needs to hand to a session
// command.
type resolved struct {
	sess           *session.Session
	partitionIndex *int
}

// resolve runs the common preamble of §4.4: password lookup, descriptor
// resolution (cache, else vendor cloud), partition-id translation, and
// session acquisition.
func (f *Facade) resolve(ctx context.Context, sessionID, panelID string, partitionID *string, requirePassword bool, force bool) (*resolved, error) {
	password := ""
	if requirePassword {
		pwd, ok := f.cache.GetPassword(sessionID, panelID)
		if !ok {
			return nil, gwerr.New(gwerr.PasswordMissing, "no saved panel password")
		}
		password = pwd
	}

	desc, ok := f.cache.GetConnectionInfo(panelID)
	if !ok {
		tok, ok := f.cache.GetToken(sessionID)
		if !ok {
			return nil, gwerr.New(gwerr.InvalidSession, "no valid oauth token for session")
		}
		info, err := f.lister.ListPanel(ctx, tok.AccessToken, panelID)
		if err != nil {
			return nil, translateConnectionError(err)
		}
		desc = model.ConnectionDescriptor{
			MAC:             info.MAC,
			Partitions:      info.PartitionIDs,
			ReceiverAccount: info.ReceiverAccount,
			ReceiverHost:    info.ReceiverHost,
			ReceiverPort:    info.ReceiverPort,
			CachedAt:        time.Now(),
		}
		if info.IsCloudEnabled {
			desc.Transport = model.TransportCloud
		} else if info.IsIPReceiverServerEnabled {
			desc.Transport = model.TransportIPReceiver
		} else {
			return nil, gwerr.New(gwerr.ConnectionUnavailable, "panel exposes no reachable transport")
		}
		f.cache.SetConnectionInfo(panelID, desc)
	}

	var partitionIndex *int
	if partitionID != nil && len(desc.Partitions) > 1 {
		for i, id := range desc.Partitions {
			if id == *partitionID {
				idx := i
				partitionIndex = &idx
				break
			}
		}
	}

	pd := pool.Descriptor{
		MAC:             desc.MAC,
		Transport:       desc.Transport,
		ReceiverHost:    desc.ReceiverHost,
		ReceiverPort:    desc.ReceiverPort,
		ReceiverAccount: desc.ReceiverAccount,
		Password:        password,
	}
	sess, err := f.pool.Acquire(ctx, panelID, pd, force)
	if err != nil {
		f.cache.InvalidateConnectionInfo(panelID)
		return nil, translateConnectionError(err)
	}
	return &resolved{sess: sess, partitionIndex: partitionIndex}, nil
}

func translateConnectionError(err error) error {
	if err == nil {
		return nil
	}
	if gwerr.KindOf(err) == gwerr.ConnectionUnavailable {
		return err
	}
	if connectionErrorPattern.MatchString(err.Error()) {
		return gwerr.Wrap(gwerr.ConnectionUnavailable, "panel connection unavailable", err)
	}
	return err
}

// partitionIndexForSend implements §4.2's partition-byte policy: when
// unknown, send the byte and let the caller retry without it on NoPartitions.
func (f *Facade) partitionIndexForSend(panelID string, idx *int) *int {
	if f.cache.GetPartitionsEnabled(panelID) == model.False {
		return nil
	}
	return idx
}
