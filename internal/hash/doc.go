// Package hash provides the checksum used to protect journal records.
//
// Records are sealed with CRC32-Castagnoli (CRC32C), which Go's hash/crc32
// accelerates with SSE4.2 on x86 and the CRC extension on ARM.
//
// One-shot:
//
//	sum := hash.CRC32C(data)
//
// Streaming, e.g. to skip a mutable byte inside a record:
//
//	h := hash.NewCRC32C()
//	h.Write(head)
//	h.Write(tail)
//	sum := h.Sum32()
package hash
