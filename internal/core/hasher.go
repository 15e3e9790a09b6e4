package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"
)

// TaskHash is the deterministic identity of a step execution and the key of
// its cache entry. It covers everything that can change the step's outputs
// and nothing else (no timestamps, no host data).
type TaskHash string

// String returns the hex form of the hash.
func (t TaskHash) String() string { return string(t) }

// TaskHasher computes TaskHashes.
type TaskHasher struct{}

// NewTaskHasher creates a new TaskHasher.
func NewTaskHasher() *TaskHasher { return &TaskHasher{} }

// HashInput contains every component of a TaskHash.
type HashInput struct {
	// Inputs is the resolved InputSet, already sorted by the resolver.
	Inputs *InputSet

	Kind    string
	Params  map[string]string
	Outputs []string

	// WorkingDir keeps identical steps of different workspaces apart.
	WorkingDir string
}

// ComputeHash hashes, in order: working directory, kind, sorted params,
// sorted outputs, then each input's path and content. Every field and every
// count is length-prefixed so no two distinct inputs share an encoding.
func (h *TaskHasher) ComputeHash(input HashInput) TaskHash {
	sum := sha256.New()

	writeField(sum, []byte(input.WorkingDir))
	writeField(sum, []byte(input.Kind))

	keys := make([]string, 0, len(input.Params))
	for k := range input.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writeCount(sum, len(keys))
	for _, k := range keys {
		writeField(sum, []byte(k))
		writeField(sum, []byte(input.Params[k]))
	}

	outputs := append([]string(nil), input.Outputs...)
	sort.Strings(outputs)
	writeCount(sum, len(outputs))
	for _, out := range outputs {
		writeField(sum, []byte(out))
	}

	var inputs []Input
	if input.Inputs != nil {
		inputs = input.Inputs.Inputs
	}
	writeCount(sum, len(inputs))
	for _, in := range inputs {
		writeField(sum, []byte(in.Path))
		writeField(sum, in.Content)
	}

	return TaskHash(hex.EncodeToString(sum.Sum(nil)))
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
