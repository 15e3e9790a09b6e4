package dag

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"
)

// computeTaskDefHash hashes the declarative fields of a step: kind, inputs,
// params and outputs. Inputs and outputs are sets for identity and are
// sorted; params are sorted by key. Every field is length-prefixed.
func computeTaskDefHash(kind string, inputs []string, params map[string]string, outputs []string) TaskDefHash {
	h := sha256.New()

	writeField(h, []byte(kind))
	writeStrings(h, inputs)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writeCount(h, len(keys))
	for _, k := range keys {
		writeField(h, []byte(k))
		writeField(h, []byte(params[k]))
	}

	writeStrings(h, outputs)

	return TaskDefHash(hex.EncodeToString(h.Sum(nil)))
}

func writeStrings(h hash.Hash, values []string) {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	writeCount(h, len(sorted))
	for _, v := range sorted {
		writeField(h, []byte(v))
	}
}

func writeCount(h hash.Hash, n int) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	h.Write(b[:])
}

func writeField(h hash.Hash, data []byte) {
	writeCount(h, len(data))
	h.Write(data)
}
