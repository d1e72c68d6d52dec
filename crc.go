package synchrophasor

import "github.com/sigurn/crc16"

var ieeeC37118Params = crc16.Params{
	Poly:   0x1021,
	Init:   0xFFFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x0000,
	Name:   "CRC-16/IEEE-C37.118",
}

var crcTable = crc16.MakeTable(ieeeC37118Params)

// CalcCRC calculates CRC-CCITT for the given data
func CalcCRC(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// VerifyCRC reports whether the last two bytes of frame match the CRC
// computed over the bytes preceding them. It never panics: a frame
// shorter than 2 bytes is simply reported invalid.
func VerifyCRC(frame []byte) bool {
	if len(frame) < 2 {
		return false
	}
	body := frame[:len(frame)-2]
	want := CalcCRC(body)
	got := uint16(frame[len(frame)-2])<<8 | uint16(frame[len(frame)-1])
	return want == got
}
