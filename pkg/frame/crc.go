package frame

// CRC-16 checksum matching the wire format in spec §4.1/§6: polynomial
// 0x1021 reversed to 0x8408, initial value 0xFFFF, processed least-
// significant-bit first per byte, no final XOR. This is the reversed-CCITT
// family, distinct from the teacher's CRC-16/ARC table (0xA001 reversed
// polynomial) in pkg/usock — same table-driven shape, different generator.
const crcInit uint16 = 0xFFFF

const crcPoly uint16 = 0x8408

var crcTable [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc := uint16(i)
		for bit := 0; bit < 8; bit++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ crcPoly
			} else {
				crc >>= 1
			}
		}
		crcTable[i] = crc
	}
}

// Checksum computes the CRC-16 over data, LSB-first, starting from the
// normative initial value 0xFFFF.
func Checksum(data []byte) uint16 {
	crc := crcInit
	for _, b := range data {
		idx := byte(crc) ^ b
		crc = (crc >> 8) ^ crcTable[idx]
	}
	return crc
}

// Verify reports whether the trailing two bytes of frame (little-endian)
// match the CRC-16 of the bytes preceding them.
func Verify(frame []byte) bool {
	if len(frame) < 2 {
		return false
	}
	body := frame[:len(frame)-2]
	lo, hi := frame[len(frame)-2], frame[len(frame)-1]
	want := uint16(lo) | uint16(hi)<<8
	return Checksum(body) == want
}

// AppendChecksum appends the little-endian CRC-16 of data to dst.
func AppendChecksum(dst, data []byte) []byte {
	crc := Checksum(data)
	return append(dst, byte(crc&0xFF), byte(crc>>8))
}
