package isecnet

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeV2RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		cmd     uint16
		payload []byte
		src     [2]byte
	}{
		{"empty payload", CmdConnect, []byte{}, [2]byte{0, 0}},
		{"one byte", CmdConnect, []byte{0x00}, [2]byte{0, 0}},
		{"app connect mac", CmdAppConnect, []byte("AMT8000-AABBCCDDEEFF"), [2]byte{0xAA, 0xBB}},
		{"max payload", CmdStatus, bytes.Repeat([]byte{0x42}, 250), [2]byte{0x01, 0x02}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeV2(tt.cmd, tt.payload, tt.src, nil)
			got, err := DecodeV2(encoded, nil)
			if err != nil {
				t.Fatalf("DecodeV2: %v", err)
			}
			if got.Cmd != tt.cmd {
				t.Errorf("cmd = %#x, want %#x", got.Cmd, tt.cmd)
			}
			if got.Src != tt.src {
				t.Errorf("src = %v, want %v", got.Src, tt.src)
			}
			if !bytes.Equal(got.Payload, tt.payload) {
				t.Errorf("payload = %v, want %v", got.Payload, tt.payload)
			}
		})
	}
}

func TestEncodeDecodeV2WithXORByte(t *testing.T) {
	xb := byte(0x5A)
	encoded := EncodeV2(CmdAppConnect, []byte("AMT8000-AABBCC"), [2]byte{0, 0}, &xb)
	got, err := DecodeV2(encoded, &xb)
	if err != nil {
		t.Fatalf("DecodeV2: %v", err)
	}
	if got.Cmd != CmdAppConnect {
		t.Errorf("cmd = %#x, want %#x", got.Cmd, CmdAppConnect)
	}
}

func TestDecodeV2ChecksumMutation(t *testing.T) {
	encoded := EncodeV2(CmdStatus, []byte{1, 2, 3}, [2]byte{0, 0}, nil)
	for i := range encoded {
		mutated := append([]byte(nil), encoded...)
		mutated[i] ^= 0x01
		if _, err := DecodeV2(mutated, nil); err == nil {
			t.Errorf("byte %d: mutation did not produce an error", i)
		}
	}
}

func TestDecodeV2ShortBuffer(t *testing.T) {
	if _, err := DecodeV2([]byte{1, 2, 3}, nil); err == nil {
		t.Error("expected error for short buffer")
	}
}

func TestPackPassword(t *testing.T) {
	tests := []struct {
		in   string
		want [6]byte
	}{
		{"1234", [6]byte{1, 2, 3, 4, 0, 0}},
		{"0000", [6]byte{10, 10, 10, 10, 0, 0}},
		{"123456", [6]byte{1, 2, 3, 4, 5, 6}},
	}
	for _, tt := range tests {
		got, err := PackPassword(tt.in)
		if err != nil {
			t.Fatalf("PackPassword(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("PackPassword(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPackPasswordRejectsNonDigit(t *testing.T) {
	if _, err := PackPassword("12a4"); err == nil {
		t.Error("expected error for non-digit password")
	}
}

func TestEncodeV1Length(t *testing.T) {
	tests := []struct {
		name string
		cmd  []byte
		pwd  string
	}{
		{"arm all partitions", []byte{'A'}, "123456"},
		{"disarm with partition", []byte{'D', 'B'}, "1234"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeV1(tt.cmd, tt.pwd)
			// size byte + E9 + 21 + password + cmd + 21 trailer + checksum
			want := 5 + len(tt.pwd) + len(tt.cmd)
			if len(got) != want {
				t.Errorf("len(EncodeV1(...)) = %d, want %d", len(got), want)
			}
		})
	}
}

func TestChecksumXORInverted(t *testing.T) {
	b := []byte{0x01, 0x02, 0x03}
	want := byte(0x01^0x02^0x03) ^ 0xFF
	if got := ChecksumXORInverted(b); got != want {
		t.Errorf("ChecksumXORInverted = %#x, want %#x", got, want)
	}
}

func TestBuildGetByteAndAppConnectV1ChecksumValid(t *testing.T) {
	gb := BuildGetByte()
	if len(gb) != 4 {
		t.Fatalf("len(BuildGetByte()) = %d, want 4", len(gb))
	}
	if got := ChecksumXORInverted(gb[:len(gb)-1]); got != gb[len(gb)-1] {
		t.Errorf("GetByte checksum mismatch")
	}

	ac := BuildAppConnectV1("0001122334")
	if got := ChecksumXORInverted(ac[:len(ac)-1]); got != ac[len(ac)-1] {
		t.Errorf("AppConnect checksum mismatch")
	}
}
