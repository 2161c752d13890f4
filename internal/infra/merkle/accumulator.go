package merkle

// Accumulator keeps every leaf appended so far and answers root and inclusion
// queries over any prefix. It is not safe for concurrent use; the ledger store
// guards it with its own lock.
type Accumulator struct {
	leaves [][]byte
}

func (a *Accumulator) Append(leaf []byte) (int64, error) {
	if err := validateHash(leaf); err != nil {
		return 0, err
	}
	a.leaves = append(a.leaves, cloneHash(leaf))
	return int64(len(a.leaves) - 1), nil
}

func (a *Accumulator) Size() int64 {
	return int64(len(a.leaves))
}

func (a *Accumulator) Reset() {
	a.leaves = nil
}

// Leaves returns a view of the first n leaves. The returned slice must not be modified.
func (a *Accumulator) Leaves(n int64) [][]byte {
	if n < 0 || n > int64(len(a.leaves)) {
		n = int64(len(a.leaves))
	}
	return a.leaves[:n:n]
}
