package isecnet

import "fmt"

// V2 command codes.
const (
	CmdConnect      uint16 = 0x30F6
	CmdAppConnect   uint16 = 0xFFF1
	CmdAuthorize    uint16 = 0xF0F0
	CmdDisconnect   uint16 = 0xF0F1
	CmdKeepAlive    uint16 = 0xF0F7
	CmdStatus       uint16 = 0x0B4A
	CmdArmDisarm    uint16 = 0x401E
	CmdBypass       uint16 = 0x401F
	CmdSirenOff     uint16 = 0x4019
	CmdPGMOnOff     uint16 = 0x45AF
	CmdPanicAlarm   uint16 = 0x401A
	CmdGetMAC       uint16 = 0x3FAA
	RespNACK        uint16 = 0xF0FD
	RespACK         uint16 = 0xF0FE
)

// V1 command bytes.
const (
	V1CmdArm       byte = 'A'
	V1CmdDisarm    byte = 'D'
	V1CmdStayFlag  byte = 'P'
	V1CmdSirenOff  byte = 'O'
	V1CmdPanic     byte = 'P'
	V1PartitionBase byte = 'A' // index appended as V1PartitionBase + index
)

// V1 response status codes (byte 2 of a short response).
const (
	V1StatusSuccess             byte = 0xFE
	V1StatusInvalidPackage      byte = 0xE0
	V1StatusIncorrectPassword   byte = 0xE1
	V1StatusInvalidCommand      byte = 0xE2
	V1StatusNoPartitions        byte = 0xE3
	V1StatusOpenZones           byte = 0xE4
	V1StatusCommandDeprecated   byte = 0xE5
	V1StatusBypassDenied        byte = 0xE6
	V1StatusDeactivationDenied  byte = 0xE7
	V1StatusBypassCentralActive byte = 0xE8
	V1StatusInvalidModel        byte = 0xFF
	V1StatusUnknown             byte = 0x00
)

// ArmOperation values for the V2 arm/disarm payload.
const (
	OpDisarm   byte = 0
	OpArmAway  byte = 1
	OpArmStay  byte = 2
	OpForceArm byte = 3
)

// AppConnect response reasons (V2, byte 8 of the app-connect reply).
const (
	AppConnectSuccess       byte = 0x00
	AppConnectNotConnected  byte = 0x01
	AppConnectCentralNotFound byte = 0x02
	AppConnectCentralBusy   byte = 0x03
	AppConnectCentralOffline byte = 0x04
)

// Authorize response reasons (V2, byte 8 of the authorize reply).
const (
	AuthorizeAccepted       byte = 0x00
	AuthorizeInvalidPassword byte = 0x01
	AuthorizeBlockedUser    byte = 0x02
	AuthorizeNoPermission   byte = 0x03
)

// ModelName maps a panel model code to its human-readable name.
func ModelName(code byte) string {
	switch code {
	case 0x01:
		return "AMT_8000"
	case 0x02:
		return "AMT_8000_LITE"
	case 0x03:
		return "AMT_8000_PRO"
	case 0x1E:
		return "AMT_2018_E_EG"
	case 0x24:
		return "ANM_24_NET"
	case 0x25:
		return "ANM_24_NET_G2"
	case 0x2E:
		return "AMT_2118_EG"
	case 0x31:
		return "AMT_2016_E3G"
	case 0x32:
		return "AMT_2018_E3G"
	case 0x34:
		return "AMT_2018_E_SMART"
	case 0x35:
		return "ELC_6012_NET"
	case 0x36:
		return "AMT_1000_SMART"
	case 0x39:
		return "ELC_6012_IND"
	case 0x41:
		return "AMT_4010"
	case 0x61:
		return "AMT_1016_NET"
	case 0x90:
		return "AMT_9000"
	default:
		return fmt.Sprintf("UNKNOWN_0x%02X", code)
	}
}

// IsFenceModel reports whether code identifies an electrified-fence
// ("eletrificador") panel variant.
func IsFenceModel(code byte) bool {
	return code == 0x35 || code == 0x39
}

// PartitionCap returns the maximum number of partitions supported by a
// model, used to bound partition parsing. Panels not listed default to 2.
func PartitionCap(code byte) int {
	switch code {
	case 0x41: // AMT_4010
		return 4
	case 0x01, 0x02, 0x03: // AMT_8000 family
		return 16
	case 0x90: // AMT_9000
		return 8
	case 0x24, 0x25: // ANM_24_NET family
		return 0
	case 0x36: // AMT_1000_SMART
		return 0
	default:
		return 2
	}
}
