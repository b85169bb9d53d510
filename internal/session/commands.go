package session

import (
	"context"

	"github.com/alarmbridge/isecnet-gateway/internal/gwerr"
	"github.com/alarmbridge/isecnet-gateway/internal/isecnet"
	"github.com/alarmbridge/isecnet-gateway/internal/model"
)

func (s *Session) requireAuthorizedLocked() error {
	if s.stage != Authorized {
		return gwerr.New(gwerr.ConnectionUnavailable, "session not authorized")
	}
	return nil
}

// GetStatus reads a status reply and parses it.
func (s *Session) GetStatus(ctx context.Context) (*model.AlarmStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAuthorizedLocked(); err != nil {
		return nil, err
	}

	if s.cfg.Transport == model.TransportCloud {
		frame := isecnet.EncodeV2(isecnet.CmdStatus, nil, s.sourceID, nil)
		if err := s.writeLocked(frame); err != nil {
			s.teardownLocked()
			return nil, err
		}
		resp, err := s.readV2FrameLocked(s.cfg.RecvTimeout, nil)
		if err != nil {
			s.teardownLocked()
			return nil, err
		}
		if resp.Cmd == isecnet.RespNACK {
			return nil, classifyV2NACK(resp.Payload)
		}
		return parseV2Status(resp.Payload, s.cfg.MAC)
	}

	cmdBytes := []byte{} // status read carries no command byte beyond the frame wrapper
	frame := isecnet.EncodeV1(cmdBytes, s.cfg.Password)
	if err := s.writeLocked(frame); err != nil {
		s.teardownLocked()
		return nil, err
	}
	data, total, err := s.readV1FrameLocked(s.cfg.RecvTimeout)
	if err != nil {
		s.teardownLocked()
		return nil, err
	}
	if total == 46 {
		return parseV1PartialStatus(rebuildV1Data(data), s.cfg.MAC)
	}
	if total >= 96 {
		return parseV1CompleteStatus(rebuildV1Data(data), s.cfg.MAC)
	}
	if err := classifyV1ShortError(data.Status); err != nil {
		return nil, err
	}
	return nil, gwerr.New(gwerr.ProtocolError, "status reply too short to parse")
}

// rebuildV1Data reconstructs the original data slice (EchoedCmd + Status +
// Body) for the status parsers, which index from offset 0 = 0xE9 echo.
func rebuildV1Data(f *isecnet.V1Frame) []byte {
	out := make([]byte, 0, 2+len(f.Body))
	out = append(out, f.EchoedCmd, f.Status)
	out = append(out, f.Body...)
	return out
}

func classifyV2NACK(payload []byte) error {
	if len(payload) < 1 {
		return gwerr.New(gwerr.ProtocolError, "nack payload empty")
	}
	return gwerr.New(gwerr.ProtocolError, "command rejected by panel")
}

func classifyV1ShortError(code byte) error {
	switch code {
	case isecnet.V1StatusSuccess:
		return nil
	case isecnet.V1StatusInvalidPackage:
		return gwerr.New(gwerr.ProtocolError, "invalid package")
	case isecnet.V1StatusIncorrectPassword:
		return gwerr.NewWithReason(gwerr.AuthRejected, "invalid_password", "incorrect password")
	case isecnet.V1StatusInvalidCommand:
		return gwerr.New(gwerr.ProtocolError, "invalid command")
	case isecnet.V1StatusNoPartitions:
		return gwerr.New(gwerr.NoPartitions, "central does not have partitions")
	case isecnet.V1StatusOpenZones:
		return gwerr.New(gwerr.OpenZonesErr, "open zones")
	case isecnet.V1StatusCommandDeprecated:
		return gwerr.New(gwerr.ProtocolError, "command deprecated")
	case isecnet.V1StatusBypassDenied:
		return gwerr.New(gwerr.ProtocolError, "bypass denied")
	case isecnet.V1StatusDeactivationDenied:
		return gwerr.New(gwerr.ProtocolError, "deactivation denied")
	case isecnet.V1StatusBypassCentralActive:
		return gwerr.New(gwerr.ProtocolError, "bypass - central activated")
	case isecnet.V1StatusInvalidModel:
		return gwerr.New(gwerr.ProtocolError, "invalid model")
	default:
		return gwerr.New(gwerr.ProtocolError, "unknown v1 status code")
	}
}

// Arm sends an arm command. partitionIndex is nil when the caller wants
// the partition byte omitted (panel known to have partitions disabled, or
// a panel with <=1 partition). Returns the result plus an updated
// TriState for partitions_enabled when the panel's reply taught us
// something new (NoPartitions -> False).
func (s *Session) Arm(ctx context.Context, mode model.ArmMode, partitionIndex *int) (*model.CommandResult, model.TriState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAuthorizedLocked(); err != nil {
		return nil, model.Unknown, err
	}

	if s.cfg.Transport == model.TransportCloud {
		partByte := byte(0xFF)
		if partitionIndex != nil {
			partByte = byte(*partitionIndex + 1)
		}
		op := isecnet.OpArmAway
		if mode == model.ArmStay {
			op = isecnet.OpArmStay
		}
		frame := isecnet.EncodeV2(isecnet.CmdArmDisarm, []byte{partByte, op}, s.sourceID, nil)
		if err := s.writeLocked(frame); err != nil {
			s.teardownLocked()
			return nil, model.Unknown, err
		}
		resp, err := s.readV2FrameLocked(s.cfg.RecvTimeout, nil)
		if err != nil {
			s.teardownLocked()
			return nil, model.Unknown, err
		}
		if resp.Cmd == isecnet.RespNACK {
			return nil, model.Unknown, classifyV2NACK(resp.Payload)
		}
		newStatus := model.PartitionArmedAway
		if mode == model.ArmStay {
			newStatus = model.PartitionArmedStay
		}
		return &model.CommandResult{Success: true, NewStatus: newStatus}, model.Unknown, nil
	}

	cmdBytes := []byte{isecnet.V1CmdArm}
	if partitionIndex != nil {
		cmdBytes = append(cmdBytes, isecnet.V1PartitionBase+byte(*partitionIndex))
	}
	if mode == model.ArmStay {
		cmdBytes = append(cmdBytes, isecnet.V1CmdStayFlag)
	}
	frame := isecnet.EncodeV1(cmdBytes, s.cfg.Password)
	if err := s.writeLocked(frame); err != nil {
		s.teardownLocked()
		return nil, model.Unknown, err
	}

	data, total, err := s.readV1FrameLocked(s.cfg.ArmRecvTimeout)
	if err != nil {
		if gwerr.KindOf(err) == gwerr.ConnectionUnavailable {
			// No frame within the short ARM timeout: the arm-verify quirk.
			// The session is NOT torn down; a compliant panel simply stayed
			// quiet. Caller (facade) verifies with a status read.
			return &model.CommandResult{Success: true, Message: "command sent, unverified"}, model.Unknown, nil
		}
		s.teardownLocked()
		return nil, model.Unknown, err
	}
	if total == 46 || total >= 96 {
		newStatus := model.PartitionArmedAway
		if mode == model.ArmStay {
			newStatus = model.PartitionArmedStay
		}
		return &model.CommandResult{Success: true, NewStatus: newStatus}, model.Unknown, nil
	}
	if data.Status == isecnet.V1StatusNoPartitions {
		return nil, model.False, gwerr.New(gwerr.NoPartitions, "central does not have partitions")
	}
	if err := classifyV1ShortError(data.Status); err != nil {
		return nil, model.Unknown, err
	}
	newStatus := model.PartitionArmedAway
	if mode == model.ArmStay {
		newStatus = model.PartitionArmedStay
	}
	return &model.CommandResult{Success: true, NewStatus: newStatus}, model.Unknown, nil
}

// Disarm sends a disarm command. Disarm responses are reliable, so there
// is no arm-verify-style retry path.
func (s *Session) Disarm(ctx context.Context, partitionIndex *int) (*model.CommandResult, model.TriState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAuthorizedLocked(); err != nil {
		return nil, model.Unknown, err
	}

	if s.cfg.Transport == model.TransportCloud {
		partByte := byte(0xFF)
		if partitionIndex != nil {
			partByte = byte(*partitionIndex + 1)
		}
		frame := isecnet.EncodeV2(isecnet.CmdArmDisarm, []byte{partByte, isecnet.OpDisarm}, s.sourceID, nil)
		if err := s.writeLocked(frame); err != nil {
			s.teardownLocked()
			return nil, model.Unknown, err
		}
		resp, err := s.readV2FrameLocked(s.cfg.RecvTimeout, nil)
		if err != nil {
			s.teardownLocked()
			return nil, model.Unknown, err
		}
		if resp.Cmd == isecnet.RespNACK {
			return nil, model.Unknown, classifyV2NACK(resp.Payload)
		}
		return &model.CommandResult{Success: true, NewStatus: model.PartitionDisarmed}, model.Unknown, nil
	}

	cmdBytes := []byte{isecnet.V1CmdDisarm}
	if partitionIndex != nil {
		cmdBytes = append(cmdBytes, isecnet.V1PartitionBase+byte(*partitionIndex))
	}
	frame := isecnet.EncodeV1(cmdBytes, s.cfg.Password)
	if err := s.writeLocked(frame); err != nil {
		s.teardownLocked()
		return nil, model.Unknown, err
	}
	data, total, err := s.readV1FrameLocked(s.cfg.RecvTimeout)
	if err != nil {
		s.teardownLocked()
		return nil, model.Unknown, err
	}
	if total == 46 || total >= 96 {
		return &model.CommandResult{Success: true, NewStatus: model.PartitionDisarmed}, model.Unknown, nil
	}
	if data.Status == isecnet.V1StatusNoPartitions {
		return nil, model.False, gwerr.New(gwerr.NoPartitions, "central does not have partitions")
	}
	if err := classifyV1ShortError(data.Status); err != nil {
		return nil, model.Unknown, err
	}
	return &model.CommandResult{Success: true, NewStatus: model.PartitionDisarmed}, model.Unknown, nil
}

// BypassZones toggles bypass for the given zero-based zone indices.
func (s *Session) BypassZones(ctx context.Context, indices []int, bypass bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAuthorizedLocked(); err != nil {
		return err
	}

	flag := byte(0)
	if bypass {
		flag = 1
	}
	if s.cfg.Transport == model.TransportCloud {
		payload := make([]byte, 0, 9)
		payload = append(payload, 0xFF)
		zones := make([]byte, 8)
		for _, idx := range indices {
			if idx >= 0 && idx < 8 {
				zones[idx] = flag
			}
		}
		payload = append(payload, zones...)
		frame := isecnet.EncodeV2(isecnet.CmdBypass, payload, s.sourceID, nil)
		if err := s.writeLocked(frame); err != nil {
			s.teardownLocked()
			return err
		}
		resp, err := s.readV2FrameLocked(s.cfg.RecvTimeout, nil)
		if err != nil {
			s.teardownLocked()
			return err
		}
		if resp.Cmd == isecnet.RespNACK {
			return classifyV2NACK(resp.Payload)
		}
		return nil
	}

	for _, idx := range indices {
		cmdBytes := []byte{'B', isecnet.V1PartitionBase + byte(idx)}
		frame := isecnet.EncodeV1(cmdBytes, s.cfg.Password)
		if err := s.writeLocked(frame); err != nil {
			s.teardownLocked()
			return err
		}
		data, total, err := s.readV1FrameLocked(s.cfg.RecvTimeout)
		if err != nil {
			s.teardownLocked()
			return err
		}
		if total != 46 && total < 96 {
			if err := classifyV1ShortError(data.Status); err != nil {
				return err
			}
		}
	}
	return nil
}

// TurnOffSiren silences an active siren without changing arm state.
func (s *Session) TurnOffSiren(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAuthorizedLocked(); err != nil {
		return err
	}
	if s.cfg.Transport == model.TransportCloud {
		frame := isecnet.EncodeV2(isecnet.CmdSirenOff, nil, s.sourceID, nil)
		return s.sendAndExpectAck(frame)
	}
	frame := isecnet.EncodeV1([]byte{isecnet.V1CmdSirenOff}, s.cfg.Password)
	return s.sendAndExpectV1OK(frame)
}

// FenceShock toggles electrified-fence shock output (fence models only).
func (s *Session) FenceShock(ctx context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAuthorizedLocked(); err != nil {
		return err
	}
	flag := byte(0)
	if on {
		flag = 1
	}
	frame := isecnet.EncodeV2(isecnet.CmdArmDisarm, []byte{2, flag}, s.sourceID, nil)
	return s.sendAndExpectAck(frame)
}

// FenceAlarm toggles electrified-fence alarm arming (fence models only).
func (s *Session) FenceAlarm(ctx context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAuthorizedLocked(); err != nil {
		return err
	}
	flag := byte(0)
	if on {
		flag = 1
	}
	frame := isecnet.EncodeV2(isecnet.CmdArmDisarm, []byte{1, flag}, s.sourceID, nil)
	return s.sendAndExpectAck(frame)
}

// PGMSet toggles a programmable output relay. V2-only; the original
// implementation has no V1 equivalent.
func (s *Session) PGMSet(ctx context.Context, pgmIndex int, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAuthorizedLocked(); err != nil {
		return err
	}
	if s.cfg.Transport != model.TransportCloud {
		return gwerr.New(gwerr.ProtocolError, "pgm control requires cloud transport")
	}
	flag := byte(0)
	if on {
		flag = 1
	}
	frame := isecnet.EncodeV2(isecnet.CmdPGMOnOff, []byte{byte(pgmIndex), flag}, s.sourceID, nil)
	return s.sendAndExpectAck(frame)
}

// PanicAlarm triggers a panic/medical/fire alarm.
func (s *Session) PanicAlarm(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAuthorizedLocked(); err != nil {
		return err
	}
	if s.cfg.Transport == model.TransportCloud {
		frame := isecnet.EncodeV2(isecnet.CmdPanicAlarm, []byte{0x00}, s.sourceID, nil)
		return s.sendAndExpectAck(frame)
	}
	frame := isecnet.EncodeV1([]byte{isecnet.V1CmdPanic}, s.cfg.Password)
	return s.sendAndExpectV1OK(frame)
}

// ResolveMAC asks the panel itself for its MAC over an already-open cloud
// session. The facade's resolve preamble does not call it; descriptors
// come from the connection-info cache or the vendor cloud lister only.
func (s *Session) ResolveMAC(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAuthorizedLocked(); err != nil {
		return "", err
	}
	if s.cfg.Transport != model.TransportCloud {
		return "", gwerr.New(gwerr.ProtocolError, "get_mac requires cloud transport")
	}
	frame := isecnet.EncodeV2(isecnet.CmdGetMAC, nil, s.sourceID, nil)
	if err := s.writeLocked(frame); err != nil {
		s.teardownLocked()
		return "", err
	}
	resp, err := s.readV2FrameLocked(s.cfg.RecvTimeout, nil)
	if err != nil {
		s.teardownLocked()
		return "", err
	}
	if resp.Cmd == isecnet.RespNACK || len(resp.Payload) < 6 {
		return "", gwerr.New(gwerr.ProtocolError, "get_mac failed")
	}
	return formatMAC(resp.Payload[:6]), nil
}

func formatMAC(b []byte) string {
	const hex = "0123456789ABCDEF"
	out := make([]byte, 0, 12)
	for _, c := range b {
		out = append(out, hex[c>>4], hex[c&0x0F])
	}
	return string(out)
}

func (s *Session) sendAndExpectAck(frame []byte) error {
	if err := s.writeLocked(frame); err != nil {
		s.teardownLocked()
		return err
	}
	resp, err := s.readV2FrameLocked(s.cfg.RecvTimeout, nil)
	if err != nil {
		s.teardownLocked()
		return err
	}
	if resp.Cmd == isecnet.RespNACK {
		return classifyV2NACK(resp.Payload)
	}
	return nil
}

// SendKeepAlive sends a cloud-relay keep-alive to prevent the vendor relay
// from dropping an idle link faster than the pool's local idle-eviction
// window would otherwise notice. The keep-alive write does not count as
// activity, so it does not postpone idle eviction.
func (s *Session) SendKeepAlive(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != Authorized || s.cfg.Transport != model.TransportCloud {
		return nil
	}
	frame := isecnet.EncodeV2(isecnet.CmdKeepAlive, nil, s.sourceID, nil)
	prev := s.lastActivity
	err := s.writeLocked(frame)
	s.lastActivity = prev
	return err
}

func (s *Session) sendAndExpectV1OK(frame []byte) error {
	if err := s.writeLocked(frame); err != nil {
		s.teardownLocked()
		return err
	}
	data, total, err := s.readV1FrameLocked(s.cfg.RecvTimeout)
	if err != nil {
		s.teardownLocked()
		return err
	}
	if total == 46 || total >= 96 {
		return nil
	}
	return classifyV1ShortError(data.Status)
}
