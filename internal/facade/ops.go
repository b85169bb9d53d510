package facade

import (
	"context"
	"time"

	"github.com/alarmbridge/isecnet-gateway/internal/gwerr"
	"github.com/alarmbridge/isecnet-gateway/internal/model"
	"github.com/alarmbridge/isecnet-gateway/internal/session"
)

const armVerifySleep = 500 * time.Millisecond

// GetStatus reads status and updates the durable caches. On connection
// failure it falls back to the last known status with a flag set, the one
// place the facade converts a ConnectionUnavailable into a softened result
// per the error propagation rules.
func (f *Facade) GetStatus(ctx context.Context, sessionID, panelID string) (*model.AlarmStatus, error) {
	r, err := f.resolve(ctx, sessionID, panelID, nil, true, false)
	if err != nil {
		return f.fallbackToLastKnown(panelID, err)
	}
	status, err := r.sess.GetStatus(ctx)
	if err != nil {
		f.pool.Evict(panelID)
		return f.fallbackToLastKnown(panelID, translateConnectionError(err))
	}
	f.cache.SetPartitionsEnabled(panelID, status.PartitionsEnabled)
	_ = f.cache.SetLastKnownStatus(panelID, *status)
	return status, nil
}

func (f *Facade) fallbackToLastKnown(panelID string, cause error) (*model.AlarmStatus, error) {
	if gwerr.KindOf(cause) != gwerr.ConnectionUnavailable {
		return nil, cause
	}
	status, lastUpdated, ok := f.cache.GetLastKnownStatus(panelID)
	if !ok {
		return nil, cause
	}
	status.ConnectionUnavailable = true
	status.LastUpdated = lastUpdated
	return &status, nil
}

// Arm sends an arm command, applying the arm-verify quirk and the
// partition-byte learning policy.
func (f *Facade) Arm(ctx context.Context, sessionID, panelID string, mode model.ArmMode, partitionID *string) (*model.CommandResult, error) {
	r, err := f.resolve(ctx, sessionID, panelID, partitionID, true, false)
	if err != nil {
		return nil, err
	}
	idx := f.partitionIndexForSend(panelID, r.partitionIndex)

	result, learned, err := r.sess.Arm(ctx, mode, idx)
	if err != nil {
		switch gwerr.KindOf(err) {
		case gwerr.NoPartitions:
			if idx == nil {
				return nil, translateConnectionError(err)
			}
			f.cache.SetPartitionsEnabled(panelID, model.False)
			result, _, err = r.sess.Arm(ctx, mode, nil)
			if err != nil {
				if gwerr.KindOf(err) == gwerr.OpenZonesErr {
					return nil, f.openZonesFailure(ctx, r.sess, panelID)
				}
				f.pool.Evict(panelID)
				return nil, translateConnectionError(err)
			}
		case gwerr.OpenZonesErr:
			return nil, f.openZonesFailure(ctx, r.sess, panelID)
		default:
			f.pool.Evict(panelID)
			return nil, translateConnectionError(err)
		}
	}
	if learned == model.False {
		f.cache.SetPartitionsEnabled(panelID, model.False)
	}

	if result.Message == "command sent, unverified" {
		time.Sleep(armVerifySleep)
		status, verr := r.sess.GetStatus(ctx)
		if verr == nil {
			_ = f.cache.SetLastKnownStatus(panelID, *status)
			if status.ArmMode == model.PartitionDisarmed {
				return nil, f.openZonesFromStatus(panelID, status)
			}
			result.NewStatus = status.ArmMode
		}
	}

	partID := ""
	if partitionID != nil {
		partID = *partitionID
	}
	f.hub.BroadcastTo(sessionID, model.Event{
		Type: "alarm_event",
		Data: model.StateChangedEvent{
			EventType:   "state_changed",
			DeviceID:    panelID,
			PartitionID: partID,
			NewStatus:   result.NewStatus.String(),
		},
	})
	return result, nil
}

// Disarm sends a disarm command. Disarm responses are reliable, so there
// is no arm-verify-style retry.
func (f *Facade) Disarm(ctx context.Context, sessionID, panelID string, partitionID *string) (*model.CommandResult, error) {
	r, err := f.resolve(ctx, sessionID, panelID, partitionID, true, false)
	if err != nil {
		return nil, err
	}
	idx := f.partitionIndexForSend(panelID, r.partitionIndex)

	result, learned, err := r.sess.Disarm(ctx, idx)
	if err != nil {
		if gwerr.KindOf(err) == gwerr.NoPartitions && idx != nil {
			f.cache.SetPartitionsEnabled(panelID, model.False)
			result, _, err = r.sess.Disarm(ctx, nil)
		}
		if err != nil {
			f.pool.Evict(panelID)
			return nil, translateConnectionError(err)
		}
	}
	if learned == model.False {
		f.cache.SetPartitionsEnabled(panelID, model.False)
	}

	partID := ""
	if partitionID != nil {
		partID = *partitionID
	}
	f.hub.BroadcastTo(sessionID, model.Event{
		Type: "alarm_event",
		Data: model.StateChangedEvent{
			EventType:   "state_changed",
			DeviceID:    panelID,
			PartitionID: partID,
			NewStatus:   model.PartitionDisarmed.String(),
		},
	})
	return result, nil
}

func (f *Facade) openZonesFailure(ctx context.Context, sess *session.Session, panelID string) error {
	status, err := sess.GetStatus(ctx)
	if err != nil {
		return translateConnectionError(err)
	}
	_ = f.cache.SetLastKnownStatus(panelID, *status)
	return f.openZonesFromStatus(panelID, status)
}

func (f *Facade) openZonesFromStatus(panelID string, status *model.AlarmStatus) error {
	names := f.cache.GetAllZoneFriendlyNames(panelID)
	var zones []model.OpenZone
	for _, z := range status.Zones {
		if z.Open {
			zones = append(zones, model.OpenZone{
				Index:        z.Index,
				Name:         z.Name,
				FriendlyName: names[z.Index],
			})
		}
	}
	return &gwerr.Error{Kind: gwerr.OpenZonesErr, Message: "arm blocked by open zones", Zones: zones}
}

// BypassZones toggles bypass for the given zero-based zone indices. No
// event is emitted.
func (f *Facade) BypassZones(ctx context.Context, sessionID, panelID string, indices []int, bypass bool) error {
	r, err := f.resolve(ctx, sessionID, panelID, nil, true, false)
	if err != nil {
		return err
	}
	if err := r.sess.BypassZones(ctx, indices, bypass); err != nil {
		f.pool.Evict(panelID)
		return translateConnectionError(err)
	}
	return nil
}

// TurnOffSiren silences an active siren without changing arm state, and
// emits a state_changed event carrying the panel's current arm mode.
func (f *Facade) TurnOffSiren(ctx context.Context, sessionID, panelID string) (*model.CommandResult, error) {
	r, err := f.resolve(ctx, sessionID, panelID, nil, true, false)
	if err != nil {
		return nil, err
	}
	if err := r.sess.TurnOffSiren(ctx); err != nil {
		f.pool.Evict(panelID)
		return nil, translateConnectionError(err)
	}
	current := model.PartitionDisarmed
	if status, _, ok := f.cache.GetLastKnownStatus(panelID); ok {
		current = status.ArmMode
	}
	f.hub.BroadcastTo(sessionID, model.Event{
		Type: "alarm_event",
		Data: model.StateChangedEvent{EventType: "state_changed", DeviceID: panelID, NewStatus: current.String()},
	})
	return &model.CommandResult{Success: true, NewStatus: current}, nil
}

// FenceShock toggles electrified-fence shock output.
func (f *Facade) FenceShock(ctx context.Context, sessionID, panelID string, on bool) (*model.CommandResult, error) {
	r, err := f.resolve(ctx, sessionID, panelID, nil, true, false)
	if err != nil {
		return nil, err
	}
	if err := r.sess.FenceShock(ctx, on); err != nil {
		f.pool.Evict(panelID)
		return nil, translateConnectionError(err)
	}
	return &model.CommandResult{Success: true}, nil
}

// FenceAlarm toggles electrified-fence alarm arming.
func (f *Facade) FenceAlarm(ctx context.Context, sessionID, panelID string, on bool) (*model.CommandResult, error) {
	r, err := f.resolve(ctx, sessionID, panelID, nil, true, false)
	if err != nil {
		return nil, err
	}
	if err := r.sess.FenceAlarm(ctx, on); err != nil {
		f.pool.Evict(panelID)
		return nil, translateConnectionError(err)
	}
	return &model.CommandResult{Success: true}, nil
}

// PGMSet toggles a programmable output relay (supplemented operation, V2-only).
func (f *Facade) PGMSet(ctx context.Context, sessionID, panelID string, pgmIndex int, on bool) error {
	r, err := f.resolve(ctx, sessionID, panelID, nil, true, false)
	if err != nil {
		return err
	}
	if err := r.sess.PGMSet(ctx, pgmIndex, on); err != nil {
		f.pool.Evict(panelID)
		return translateConnectionError(err)
	}
	return nil
}

// PanicAlarm triggers a panic alarm (supplemented operation).
func (f *Facade) PanicAlarm(ctx context.Context, sessionID, panelID string) error {
	r, err := f.resolve(ctx, sessionID, panelID, nil, true, false)
	if err != nil {
		return err
	}
	if err := r.sess.PanicAlarm(ctx); err != nil {
		f.pool.Evict(panelID)
		return translateConnectionError(err)
	}
	return nil
}
