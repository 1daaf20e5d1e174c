package pattern

import "github.com/cespare/xxhash/v2"

// Signature is the stable 64-bit hash of a canonical string, keying
// patterns in the PatternStore.
type Signature uint64

// Hash computes the signature of a canonical string. xxhash has no
// per-process random seed, so two events with identical canonical
// text always produce the same signature within a run (and in
// practice across runs, though only within-process stability is
// required by spec).
func Hash(canonical string) Signature {
	return Signature(xxhash.Sum64String(canonical))
}
