// Package model defines the tagged data types shared across the gateway:
// connection descriptors, protocol session stages, and the parsed alarm
// status record. Replacing the loose dicts of the original implementation,
// every ambiguous field here is an explicit type (TriState for
// partitions_enabled, ArmMode enum, optional *int partition index) rather
// than a value that is sometimes absent, sometimes a different shape.
package model

import "time"

// TransportMode identifies which ISECNet dialect a panel connection uses.
type TransportMode int

const (
	TransportCloud TransportMode = iota
	TransportIPReceiver
)

func (m TransportMode) String() string {
	if m == TransportCloud {
		return "cloud"
	}
	return "ip_receiver"
}

// ConnectionDescriptor is the cached routing information needed to reach
// one panel.
type ConnectionDescriptor struct {
	MAC              string
	Transport        TransportMode
	ReceiverHost     string
	ReceiverPort     int
	ReceiverAccount  string
	Partitions       []string // vendor partition ids, in display order
	CachedAt         time.Time
}

// TriState represents partitions_enabled, which starts unknown and is
// learned from a parsed status reply or an observed NoPartitions error.
type TriState int

const (
	Unknown TriState = iota
	True
	False
)

// ArmMode is the caller-facing arm mode.
type ArmMode int

const (
	ArmAway ArmMode = iota
	ArmStay
)

// PartitionState is the panel's reported per-partition condition.
type PartitionState int

const (
	PartitionDisarmed PartitionState = iota
	PartitionArmedAway
	PartitionArmedStay
	PartitionTriggered
)

func (s PartitionState) String() string {
	switch s {
	case PartitionArmedAway:
		return "armed_away"
	case PartitionArmedStay:
		return "armed_stay"
	case PartitionTriggered:
		return "triggered"
	default:
		return "disarmed"
	}
}

// ParsePartitionState reverses PartitionState.String, used when restoring a
// persisted AlarmStatus from the cache snapshot. An unrecognized string
// parses as PartitionDisarmed, matching the zero value.
func ParsePartitionState(s string) PartitionState {
	switch s {
	case "armed_away":
		return PartitionArmedAway
	case "armed_stay":
		return PartitionArmedStay
	case "triggered":
		return PartitionTriggered
	default:
		return PartitionDisarmed
	}
}

// Partition is one entry of AlarmStatus.Partitions.
type Partition struct {
	Index int
	State PartitionState
	Armed bool
	Total bool
}

// Zone is one entry of AlarmStatus.Zones.
type Zone struct {
	Index          int
	Name           string
	Open           bool
	Bypassed       bool
	IsWireless     bool
	BatteryLow     bool
	SignalStrength int // 0..10, meaningful only when IsWireless
	Tamper         bool
}

// FenceState carries the electrified-fence block, meaningful only when
// Model's code is a fence ("eletrificador") model.
type FenceState struct {
	IsEletrificador bool
	ShockEnabled    bool
	ShockTriggered  bool
	AlarmEnabled    bool
	AlarmTriggered  bool
}

// AlarmStatus is the typed record produced by parsing a status reply.
type AlarmStatus struct {
	ModelCode            byte
	ModelName            string
	MAC                  string
	IsArmed              bool
	ArmMode              PartitionState
	IsTriggered          bool
	PartitionsEnabled    TriState
	Partitions           []Partition
	Zones                []Zone
	Fence                FenceState
	ConnectionUnavailable bool
	LastUpdated          time.Time
}

// CommandResult is the result of a successful state-changing command.
type CommandResult struct {
	Success   bool
	NewStatus PartitionState
	Message   string // e.g. "command sent, unverified"
}

// OpenZone names one zone blocking an arm attempt.
type OpenZone struct {
	Index        int
	Name         string
	FriendlyName string
}

// VendorPanelInfo is what the vendor cloud lister returns for a panel.
type VendorPanelInfo struct {
	MAC                       string
	IsCloudEnabled            bool
	IsIPReceiverServerEnabled bool
	ReceiverHost              string
	ReceiverPort              int
	ReceiverAccount           string
	PartitionIDs              []string
}

// Event is one item fanned out by the event hub.
type Event struct {
	Type string
	Data interface{}
}

// StateChangedEvent is the Data payload of a "state_changed" Event.
type StateChangedEvent struct {
	EventType   string `json:"event_type"`
	DeviceID    string `json:"device_id"`
	PartitionID string `json:"partition_id,omitempty"`
	NewStatus   string `json:"new_status"`
}
