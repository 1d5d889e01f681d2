// Package commit builds the Merkle commitment over a season's gift specs and
// verifies reveal proofs against it.
//
// Leaves are sha256(canonicalize(spec) || salt), ordered by day ascending
// (day 1 at index 0). Levels hash adjacent pairs; an odd trailing node is
// carried to the next level unchanged. A proof is the ordered list of sibling
// hashes from leaf to root; at each level the parity of the node index says
// which operand the sibling is (even index: node left, sibling right).
package commit

import (
	"encoding/hex"
	"fmt"

	"adventdrop/internal/domain"
)

// BuildResult is the output of committing a full season.
type BuildResult struct {
	Root      string
	Artifacts []domain.Artifact
}

// LeafHash computes a round's leaf: sha256(canonicalize(spec) || salt).
func LeafHash(spec domain.GiftSpec, salt []byte) (string, error) {
	c, err := Canonicalize(spec)
	if err != nil {
		return "", err
	}
	sum := Sha256(append(c, salt...))
	return hex.EncodeToString(sum[:]), nil
}

// Build validates the spec list, computes all leaves and assembles the tree.
// Specs must cover days 1..len(specs) exactly once each; saltOf must return a
// salt with at least 16 bytes of entropy for every day. Any failure here is a
// configuration error that must abort the commitment before anything is
// published.
func Build(specs []domain.GiftSpec, saltOf func(day int) []byte) (BuildResult, error) {
	if len(specs) == 0 {
		return BuildResult{}, fmt.Errorf("no gift specs to commit")
	}
	ordered := make([]domain.GiftSpec, len(specs))
	seen := make(map[int]bool, len(specs))
	for _, s := range specs {
		if s.Day < 1 || s.Day > len(specs) {
			return BuildResult{}, fmt.Errorf("day %d outside 1..%d", s.Day, len(specs))
		}
		if seen[s.Day] {
			return BuildResult{}, fmt.Errorf("duplicate day %d", s.Day)
		}
		seen[s.Day] = true
		ordered[s.Day-1] = s
	}
	leaves := make([]string, len(ordered))
	salts := make([][]byte, len(ordered))
	for i, s := range ordered {
		if err := s.Params.ValidateFor(s.Type); err != nil {
			return BuildResult{}, fmt.Errorf("day %d: %w", s.Day, err)
		}
		salt := saltOf(s.Day)
		if len(salt) < 16 {
			return BuildResult{}, fmt.Errorf("day %d: salt shorter than 16 bytes", s.Day)
		}
		leaf, err := LeafHash(s, salt)
		if err != nil {
			return BuildResult{}, fmt.Errorf("day %d: %w", s.Day, err)
		}
		leaves[i] = leaf
		salts[i] = salt
	}
	levels := buildLevels(leaves)
	root := levels[len(levels)-1][0]

	artifacts := make([]domain.Artifact, len(ordered))
	for i := range ordered {
		proof := proofFor(levels, i)
		artifacts[i] = domain.Artifact{
			Day:       ordered[i].Day,
			Salt:      hex.EncodeToString(salts[i]),
			Leaf:      leaves[i],
			Proof:     proof,
			LeafIndex: i,
		}
		// A proof that does not round-trip means the build itself is broken.
		if got := RecomputeRoot(leaves[i], proof, i, len(leaves)); got != root {
			return BuildResult{}, fmt.Errorf("day %d: proof does not reproduce root", ordered[i].Day)
		}
	}
	return BuildResult{Root: root, Artifacts: artifacts}, nil
}

// buildLevels returns every level of the tree, leaves first, root last.
func buildLevels(leaves []string) [][]string {
	levels := [][]string{leaves}
	cur := leaves
	for len(cur) > 1 {
		next := make([]string, 0, (len(cur)+1)/2)
		for i := 0; i < len(cur); i += 2 {
			if i+1 == len(cur) {
				// Odd trailing node: carried up unchanged. The same rule
				// runs on the verify side; changing it invalidates every
				// published proof.
				next = append(next, cur[i])
				break
			}
			next = append(next, hashPair(cur[i], cur[i+1]))
		}
		levels = append(levels, next)
		cur = next
	}
	return levels
}

// proofFor collects the sibling hashes for the leaf at index, climbing from
// leaf level to the root. Carried nodes contribute no proof entry for that
// level.
func proofFor(levels [][]string, index int) []string {
	proof := []string{}
	for _, level := range levels[:len(levels)-1] {
		sibling := index ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		index /= 2
	}
	return proof
}

// RecomputeRoot replays a proof from a leaf back to the root. leafCount fixes
// the level widths so carried levels are skipped exactly as Build skipped
// them. Returns "" if the proof has the wrong number of entries.
func RecomputeRoot(leaf string, proof []string, leafIndex, leafCount int) string {
	if leafIndex < 0 || leafIndex >= leafCount || leafCount == 0 {
		return ""
	}
	cur := leaf
	next := 0
	for width := leafCount; width > 1; width = (width + 1) / 2 {
		if leafIndex == width-1 && width%2 == 1 {
			// Carried node, no sibling at this level.
			leafIndex /= 2
			continue
		}
		if next >= len(proof) {
			return ""
		}
		sibling := proof[next]
		next++
		if leafIndex%2 == 0 {
			cur = hashPair(cur, sibling)
		} else {
			cur = hashPair(sibling, cur)
		}
		leafIndex /= 2
	}
	if next != len(proof) {
		return ""
	}
	return cur
}

func hashPair(left, right string) string {
	lb, err := hex.DecodeString(left)
	if err != nil {
		return ""
	}
	rb, err := hex.DecodeString(right)
	if err != nil {
		return ""
	}
	sum := Sha256(append(lb, rb...))
	return hex.EncodeToString(sum[:])
}
