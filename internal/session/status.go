package session

import (
	"github.com/alarmbridge/isecnet-gateway/internal/gwerr"
	"github.com/alarmbridge/isecnet-gateway/internal/isecnet"
	"github.com/alarmbridge/isecnet-gateway/internal/model"
)

// parseV2Status parses a V2 status reply (cmd 0x0B4A success response).
// Byte 8 (payload[0] since payload starts right after dest/src/size/cmd,
// i.e. this offset is within the full V2 frame counted from byte 0) holds
// the model code; for non-fence models bytes 10..13 hold per-partition
// state, byte 14 an overall triggered flag. Fence models use bytes 30/31.
//
// payload here is the V2Frame.Payload, which begins at what the wire spec
// calls byte 8 (the first payload byte). Offsets below are therefore
// payload-relative: wire byte 8 -> payload[0].
func parseV2Status(payload []byte, mac string) (*model.AlarmStatus, error) {
	if len(payload) < 1 {
		return nil, gwerr.New(gwerr.ProtocolError, "v2 status payload empty")
	}
	modelCode := payload[0]
	st := &model.AlarmStatus{
		ModelCode: modelCode,
		ModelName: isecnet.ModelName(modelCode),
		MAC:       mac,
	}

	if isecnet.IsFenceModel(modelCode) {
		shockByte := byteAt(payload, 30-8)
		alarmByte := byteAt(payload, 31-8)
		st.Fence = parseFenceBytes(modelCode, shockByte, alarmByte, byteAt(payload, 70-8))
		st.IsTriggered = st.Fence.ShockTriggered || st.Fence.AlarmTriggered
		return st, nil
	}

	partitionCap := isecnet.PartitionCap(modelCode)
	for i := 0; i < partitionCap && i < 4; i++ {
		b := byteAt(payload, 10-8+i)
		ps := partitionStateFromByte(b)
		st.Partitions = append(st.Partitions, model.Partition{
			Index: i,
			State: ps,
			Armed: ps != model.PartitionDisarmed,
			Total: ps == model.PartitionArmedAway,
		})
	}
	if len(st.Partitions) > 0 {
		st.ArmMode = st.Partitions[0].State
		st.IsArmed = st.ArmMode != model.PartitionDisarmed
	}
	st.IsTriggered = byteAt(payload, 14-8) != 0
	if st.IsTriggered {
		st.ArmMode = model.PartitionTriggered
	}
	return st, nil
}

func byteAt(b []byte, idx int) byte {
	if idx < 0 || idx >= len(b) {
		return 0
	}
	return b[idx]
}

func partitionStateFromByte(b byte) model.PartitionState {
	switch b {
	case 1:
		return model.PartitionArmedAway
	case 2:
		return model.PartitionArmedStay
	case 3:
		return model.PartitionTriggered
	default:
		return model.PartitionDisarmed
	}
}

func parseFenceBytes(modelCode byte, shockByte, alarmByte, panicByte byte) model.FenceState {
	fs := model.FenceState{
		IsEletrificador: true,
		ShockEnabled:    shockByte&0x01 != 0,
		ShockTriggered:  shockByte&0x04 != 0,
		AlarmEnabled:    alarmByte&0x01 != 0,
		AlarmTriggered:  alarmByte&0x04 != 0 || panicByte == 1,
	}
	return fs
}

// parseV1PartialStatus parses a 46-byte partial status dump. data is the
// 44-byte payload between the size byte and the checksum (raw[1:45]).
func parseV1PartialStatus(data []byte, mac string) (*model.AlarmStatus, error) {
	if len(data) < 39 {
		return nil, gwerr.New(gwerr.ProtocolError, "v1 partial status too short")
	}
	modelCode := data[19]
	st := &model.AlarmStatus{
		ModelCode: modelCode,
		ModelName: isecnet.ModelName(modelCode),
		MAC:       mac,
	}

	zonesOpen := parseBitmap48(data[1:7])
	zonesViolated := parseBitmap48(data[7:13])
	zonesBypassed := parseBitmap48(data[13:19])
	partitionCap := isecnet.PartitionCap(modelCode)
	nZones := maxZoneCount(partitionCap)

	if isecnet.IsFenceModel(modelCode) {
		st.Fence = parseFenceBytes(modelCode, data[21], data[22], 0)
		st.IsTriggered = st.Fence.ShockTriggered || st.Fence.AlarmTriggered
	} else {
		st.PartitionsEnabled = boolToTri(data[21] != 0)
		partitionCount := partitionCap
		if partitionCount == 0 {
			partitionCount = 1
		}
		for i := 0; i < partitionCount; i++ {
			armed := bitSet(data[22], 2*i)
			total := bitSet(data[22], 2*i+1)
			var ps model.PartitionState
			switch {
			case !armed:
				ps = model.PartitionDisarmed
			case armed && total:
				ps = model.PartitionArmedAway
			default:
				ps = model.PartitionArmedStay
			}
			st.Partitions = append(st.Partitions, model.Partition{Index: i, State: ps, Armed: armed, Total: total})
		}
		if len(st.Partitions) > 0 {
			st.ArmMode = st.Partitions[0].State
			st.IsArmed = st.ArmMode != model.PartitionDisarmed
		}
	}

	for i := 0; i < nZones; i++ {
		st.Zones = append(st.Zones, model.Zone{
			Index:    i,
			Name:     zoneDefaultName(i),
			Open:     zonesOpen[i],
			Bypassed: zonesBypassed[i],
		})
		_ = zonesViolated // retained for diagnostic dumps, not surfaced as a field yet
	}

	if len(data) > 31 {
		// battery level at offset 31; not yet a first-class status field,
		// retained for future wiring.
		_ = data[31]
	}
	return st, nil
}

// parseV1CompleteStatus extends the partial status with wireless zone
// attributes present in a >=96 byte dump.
func parseV1CompleteStatus(data []byte, mac string) (*model.AlarmStatus, error) {
	st, err := parseV1PartialStatus(data, mac)
	if err != nil {
		return nil, err
	}
	if len(data) < 116 {
		return st, nil
	}
	wirelessPresent := parseBitmap48(data[64:70])
	tamper := parseBitmap48(data[70:76])
	lowBattery := parseBitmap48(data[82:88])
	for i := range st.Zones {
		if i >= 48 {
			break
		}
		st.Zones[i].IsWireless = wirelessPresent[i]
		st.Zones[i].Tamper = tamper[i]
		st.Zones[i].BatteryLow = lowBattery[i]
		if st.Zones[i].IsWireless && 108+i < len(data) {
			st.Zones[i].SignalStrength = int(data[108+i])
		}
	}
	return st, nil
}

func maxZoneCount(partitionCap int) int {
	return 48
}

func zoneDefaultName(i int) string {
	// "Zona 04"-style default, overridden by C5 friendly names upstream.
	return zonaName(i + 1)
}

func zonaName(n int) string {
	digits := []byte{byte('0' + (n/10)%10), byte('0' + n%10)}
	return "Zona " + string(digits)
}

func parseBitmap48(b []byte) [48]bool {
	var out [48]bool
	for byteIdx := 0; byteIdx < len(b) && byteIdx < 6; byteIdx++ {
		for bit := 0; bit < 8; bit++ {
			idx := byteIdx*8 + bit
			if idx >= 48 {
				break
			}
			out[idx] = b[byteIdx]&(1<<uint(bit)) != 0
		}
	}
	return out
}

func bitSet(b byte, n int) bool {
	return b&(1<<uint(n)) != 0
}

func boolToTri(b bool) model.TriState {
	if b {
		return model.True
	}
	return model.False
}
