package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"testing"
)

func makeLeaves(n int) [][]byte {
	leaves := make([][]byte, n)
	for i := range leaves {
		sum := sha256.Sum256([]byte(fmt.Sprintf("leaf-%d", i)))
		leaves[i] = sum[:]
	}
	return leaves
}

func TestRootSingleLeafIsLeaf(t *testing.T) {
	leaves := makeLeaves(1)
	root, err := Root(leaves)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if !bytes.Equal(root, leaves[0]) {
		t.Fatal("single leaf root should equal the leaf")
	}
}

func TestRootTwoLeaves(t *testing.T) {
	leaves := makeLeaves(2)
	root, err := Root(leaves)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if !bytes.Equal(root, NodeHash(leaves[0], leaves[1])) {
		t.Fatal("unexpected two-leaf root")
	}
}

func TestRootOrEmpty(t *testing.T) {
	root, err := RootOrEmpty(nil)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if !bytes.Equal(root, EmptyRoot()) {
		t.Fatal("expected empty root")
	}
	if _, err := Root(nil); !errors.Is(err, ErrEmptyTree) {
		t.Fatalf("expected ErrEmptyTree, got %v", err)
	}
}

func TestInclusionProofsVerifyForAllSizes(t *testing.T) {
	for size := 1; size <= 17; size++ {
		leaves := makeLeaves(size)
		root, err := Root(leaves)
		if err != nil {
			t.Fatalf("root size %d: %v", size, err)
		}
		for idx := 0; idx < size; idx++ {
			path, err := InclusionProof(leaves, idx)
			if err != nil {
				t.Fatalf("proof size %d idx %d: %v", size, idx, err)
			}
			ok, err := VerifyInclusionProof(leaves[idx], idx, size, path, root)
			if err != nil {
				t.Fatalf("verify size %d idx %d: %v", size, idx, err)
			}
			if !ok {
				t.Fatalf("proof rejected size %d idx %d", size, idx)
			}
		}
	}
}

func TestInclusionProofRejectsWrongLeaf(t *testing.T) {
	leaves := makeLeaves(5)
	root, _ := Root(leaves)
	path, err := InclusionProof(leaves, 3)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	ok, err := VerifyInclusionProof(leaves[2], 3, 5, path, root)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("expected proof for a different leaf to fail")
	}
	if _, err := InclusionProof(leaves, 5); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("expected ErrInvalidIndex, got %v", err)
	}
}

func TestAccumulatorPrefixes(t *testing.T) {
	var acc Accumulator
	leaves := makeLeaves(6)
	for i, leaf := range leaves {
		idx, err := acc.Append(leaf)
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if idx != int64(i) {
			t.Fatalf("unexpected index %d", idx)
		}
	}
	prefix, err := Root(acc.Leaves(3))
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	want, _ := Root(leaves[:3])
	if !bytes.Equal(prefix, want) {
		t.Fatal("prefix root mismatch")
	}
	if _, err := acc.Append([]byte("short")); !errors.Is(err, ErrInvalidHashLen) {
		t.Fatalf("expected ErrInvalidHashLen, got %v", err)
	}
}
