// Package isecnet implements frame encoding and decoding for the two
// ISECNet dialects spoken by Intelbras alarm panels: V2 over a vendor cloud
// relay and V1 over a direct IP Receiver endpoint. Both dialects share
// big-endian fixed fields, digit-packed passwords, and an XOR-inverted
// checksum; they differ in framing and command encoding.
package isecnet

import (
	"fmt"

	"github.com/alarmbridge/isecnet-gateway/internal/gwerr"
)

// V2Frame is a decoded cloud-relay packet.
type V2Frame struct {
	Src     [2]byte
	Cmd     uint16
	Payload []byte
}

// V1Frame is a decoded IP-receiver response.
type V1Frame struct {
	EchoedCmd byte
	Status    byte
	Body      []byte
}

// ChecksumXORInverted returns the XOR of every byte in b, inverted with
// 0xFF. Both dialects use this variant uniformly; the sum-based variant
// observed in some reverse-engineering notes is not used anywhere in this
// codec.
func ChecksumXORInverted(b []byte) byte {
	var x byte
	for _, c := range b {
		x ^= c
	}
	return x ^ 0xFF
}

// PackPassword interprets each decimal digit of pwd as an integer in
// [1..9], mapping '0' to 10, and right-pads with zeros to 6 bytes.
func PackPassword(pwd string) ([6]byte, error) {
	var out [6]byte
	if len(pwd) > 6 {
		return out, fmt.Errorf("%w: password longer than 6 digits", gwerr.New(gwerr.ProtocolError, "pack password"))
	}
	for i := 0; i < len(pwd); i++ {
		c := pwd[i]
		if c < '0' || c > '9' {
			return out, fmt.Errorf("%w: non-digit password character", gwerr.New(gwerr.ProtocolError, "pack password"))
		}
		d := c - '0'
		if d == 0 {
			out[i] = 10
		} else {
			out[i] = d
		}
	}
	return out, nil
}

// EncodeV2 builds a cloud-relay frame:
// [dest:2=00 00][src:2][size:2][cmd:2][payload:N][checksum:1]
// size covers (cmd + payload). When xorByte is non-nil every byte after
// the checksum-input construction is XOR-obfuscated with it (used only
// for APP_CONNECT during the cloud handshake).
func EncodeV2(cmd uint16, payload []byte, src [2]byte, xorByte *byte) []byte {
	size := 2 + len(payload)
	buf := make([]byte, 0, 6+len(payload)+1)
	buf = append(buf, 0x00, 0x00)
	buf = append(buf, src[0], src[1])
	buf = append(buf, byte(size>>8), byte(size))
	buf = append(buf, byte(cmd>>8), byte(cmd))
	buf = append(buf, payload...)
	buf = append(buf, ChecksumXORInverted(buf))
	if xorByte != nil {
		for i := range buf {
			buf[i] ^= *xorByte
		}
	}
	return buf
}

// DecodeV2 parses a cloud-relay frame. xorByte, if non-nil, is applied to
// undo obfuscation before parsing.
func DecodeV2(raw []byte, xorByte *byte) (*V2Frame, error) {
	if len(raw) < 7 {
		return nil, gwerr.New(gwerr.ProtocolError, "v2 frame too short")
	}
	buf := raw
	if xorByte != nil {
		buf = make([]byte, len(raw))
		for i, b := range raw {
			buf[i] = b ^ *xorByte
		}
	}
	body := buf[:len(buf)-1]
	want := ChecksumXORInverted(body)
	got := buf[len(buf)-1]
	if want != got {
		return nil, gwerr.New(gwerr.ProtocolError, "v2 checksum mismatch")
	}
	size := int(buf[4])<<8 | int(buf[5])
	cmd := uint16(buf[6])<<8 | uint16(buf[7])
	payloadLen := size - 2
	if payloadLen < 0 || 8+payloadLen > len(buf)-1 {
		return nil, gwerr.New(gwerr.ProtocolError, "v2 size field out of range")
	}
	payload := make([]byte, payloadLen)
	copy(payload, buf[8:8+payloadLen])
	return &V2Frame{
		Src:     [2]byte{buf[2], buf[3]},
		Cmd:     cmd,
		Payload: payload,
	}, nil
}

// EncodeV1 builds an IP-receiver command frame:
// [size:1][0xE9][0x21][password_ascii:L][cmd_bytes:K][0x21][checksum:1]
// size = K + L + 3, measured excluding the size byte and checksum.
func EncodeV1(cmdBytes []byte, password string) []byte {
	body := make([]byte, 0, 3+len(password)+len(cmdBytes)+1)
	body = append(body, 0xE9, 0x21)
	body = append(body, password...)
	body = append(body, cmdBytes...)
	body = append(body, 0x21)

	size := len(cmdBytes) + len(password) + 3
	buf := make([]byte, 0, 1+len(body)+1)
	buf = append(buf, byte(size))
	buf = append(buf, body...)
	buf = append(buf, ChecksumXORInverted(buf))
	return buf
}

// DecodeV1 parses an IP-receiver response. Per the session-level protocol,
// responses of length exactly 46 or >= 96 bytes are status dumps and are
// handled by the caller before reaching the generic single/few-byte status
// decode path; DecodeV1 still parses them uniformly, leaving the caller to
// classify length.
func DecodeV1(raw []byte) (*V1Frame, error) {
	if len(raw) < 2 {
		return nil, gwerr.New(gwerr.ProtocolError, "v1 frame too short")
	}
	f := &V1Frame{
		EchoedCmd: raw[0],
		Status:    raw[1],
	}
	if len(raw) > 2 {
		f.Body = raw[2:]
	}
	return f, nil
}

// BuildGetByte constructs the IP-receiver handshake's first frame:
// [02][E0][01][checksum].
func BuildGetByte() []byte {
	buf := []byte{0x02, 0xE0, 0x01}
	return append(buf, ChecksumXORInverted(buf))
}

// BuildAppConnectV1 constructs the IP-receiver handshake's second frame:
// [len][E4][conn_type=0x45][account_ascii…][checksum], len = 2 + |account|.
func BuildAppConnectV1(account string) []byte {
	l := 2 + len(account)
	buf := make([]byte, 0, 1+2+len(account)+1)
	buf = append(buf, byte(l), 0xE4, 0x45)
	buf = append(buf, account...)
	return append(buf, ChecksumXORInverted(buf))
}
