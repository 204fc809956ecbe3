package indexer

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"

	"lukechampine.com/blake3"
)

// receiptDigest fingerprints the canonical fields of a persisted
// receipt. Each field is length-prefixed before hashing so adjacent
// fields cannot be reassociated without changing the digest.
func receiptDigest(fields ...string) string {
	buf := new(bytes.Buffer)
	for _, field := range fields {
		writeDelimited(buf, []byte(field))
	}
	sum := blake3.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

func writeDelimited(buf *bytes.Buffer, data []byte) {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	buf.Write(length[:])
	buf.Write(data)
}
