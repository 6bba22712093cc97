package mapping

import "encoding/binary"

// Checksumは、DSSチェックサムを計算します。
//
// 擬似ヘッダ (データシーケンス番号64ビット、サブフローシーケンス番号32ビット、
// データレベル長16ビット、ゼロ16ビット) とペイロードに対する1の補数和です。
func Checksum(m Mapping, payload []byte) uint16 {
	var hdr [16]byte
	binary.BigEndian.PutUint64(hdr[0:8], m.DataSeq)
	binary.BigEndian.PutUint32(hdr[8:12], m.SubflowSeq)
	binary.BigEndian.PutUint16(hdr[12:14], m.Length)
	sum := onesSum(0, hdr[:])
	sum = onesSum(sum, payload)
	return ^uint16(sum)
}

// VerifyChecksumは、受信したチェックサムを含めた和が0になるかを検証します。
func VerifyChecksum(m Mapping, payload []byte, checksum uint16) bool {
	return Checksum(m, payload) == checksum
}

func onesSum(sum uint32, b []byte) uint32 {
	for len(b) >= 2 {
		sum += uint32(binary.BigEndian.Uint16(b))
		b = b[2:]
	}
	if len(b) == 1 {
		sum += uint32(b[0]) << 8
	}
	for sum > 0xffff {
		sum = sum&0xffff + sum>>16
	}
	return sum
}
