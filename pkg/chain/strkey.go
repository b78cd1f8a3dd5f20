package chain

import (
	"encoding/base32"
	"encoding/binary"
	"fmt"
)

// NativeAsset identifies lumens on Stellar.
const NativeAsset = "native"

// StrKey version bytes.
const (
	VersionAccount  byte = 6 << 3  // G...
	VersionContract byte = 2 << 3  // C...
	VersionSeed     byte = 18 << 3 // S...
)

const strKeyPayloadLen = 32

var strKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// DecodeStrKey decodes a Stellar account, contract or seed strkey and returns
// its version byte and 32-byte payload.
func DecodeStrKey(s string) (byte, []byte, error) {
	raw, err := strKeyEncoding.DecodeString(s)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid strkey %q: %w", s, err)
	}
	if len(raw) != 1+strKeyPayloadLen+2 {
		return 0, nil, fmt.Errorf("invalid strkey %q: unexpected length %d", s, len(raw))
	}

	body := raw[:len(raw)-2]
	want := binary.LittleEndian.Uint16(raw[len(raw)-2:])
	if got := crc16XModem(body); got != want {
		return 0, nil, fmt.Errorf("invalid strkey %q: checksum mismatch", s)
	}

	version := body[0]
	switch version {
	case VersionAccount, VersionContract, VersionSeed:
	default:
		return 0, nil, fmt.Errorf("invalid strkey %q: unknown version byte %d", s, version)
	}
	return version, append([]byte(nil), body[1:]...), nil
}

// EncodeStrKey renders a 32-byte payload as a strkey with the given version.
func EncodeStrKey(version byte, payload []byte) (string, error) {
	if len(payload) != strKeyPayloadLen {
		return "", fmt.Errorf("strkey payload must be %d bytes, got %d", strKeyPayloadLen, len(payload))
	}
	buf := make([]byte, 0, 1+strKeyPayloadLen+2)
	buf = append(buf, version)
	buf = append(buf, payload...)
	buf = binary.LittleEndian.AppendUint16(buf, crc16XModem(buf))
	return strKeyEncoding.EncodeToString(buf), nil
}

func crc16XModem(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
