// Package reveal gates what a round discloses by calendar phase and verifies
// a disclosed round against the published commitment root.
package reveal

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"adventdrop/internal/commit"
	"adventdrop/internal/domain"
)

// Phase is a round's disclosure state.
type Phase string

const (
	// PhaseHidden: the round's day has not arrived; disclosure is refused.
	PhaseHidden Phase = "hidden"
	// PhaseHintOnly: the round's day is today; only day, hint and sub-hint
	// are disclosed.
	PhaseHintOnly Phase = "hint_only"
	// PhaseFullyRevealed: the round's day has passed; the full spec, salt,
	// leaf, proof and root are disclosed.
	PhaseFullyRevealed Phase = "fully_revealed"
)

// ErrNotYetRevealed is returned when disclosure is requested for a hidden
// round.
var ErrNotYetRevealed = errors.New("gift not yet revealed")

// PhaseFor compares the round's calendar date (season start + day-1) against
// now, by UTC calendar day only. override forces full disclosure for
// non-production testing.
func PhaseFor(day int, seasonStart, now time.Time, override bool) Phase {
	if override {
		return PhaseFullyRevealed
	}
	roundDate := seasonStart.UTC().AddDate(0, 0, day-1)
	ry, rm, rd := roundDate.Date()
	ny, nm, nd := now.UTC().Date()
	round := time.Date(ry, rm, rd, 0, 0, 0, 0, time.UTC)
	current := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	switch {
	case current.Before(round):
		return PhaseHidden
	case current.Equal(round):
		return PhaseHintOnly
	default:
		return PhaseFullyRevealed
	}
}

// Disclose filters a round's data down to what the phase allows.
func Disclose(spec domain.GiftSpec, artifact domain.Artifact, root string, phase Phase) (domain.Disclosure, error) {
	switch phase {
	case PhaseHidden:
		return domain.Disclosure{}, ErrNotYetRevealed
	case PhaseHintOnly:
		return domain.Disclosure{
			Day:     spec.Day,
			Hint:    spec.Hint,
			SubHint: spec.SubHint,
		}, nil
	case PhaseFullyRevealed:
		gift := spec
		return domain.Disclosure{
			Day:     spec.Day,
			Hint:    spec.Hint,
			SubHint: spec.SubHint,
			Gift:    &gift,
			Salt:    artifact.Salt,
			Leaf:    artifact.Leaf,
			Proof:   artifact.Proof,
			Root:    root,
		}, nil
	default:
		return domain.Disclosure{}, fmt.Errorf("unknown phase %q", phase)
	}
}

// Verifier checks disclosures against a published root. Leaves is the season
// length; it fixes the tree shape so proofs replay exactly as they were
// built.
type Verifier struct {
	Root   string
	Leaves int
}

// NewVerifier returns a verifier for a standard 24-round season.
func NewVerifier(root string) Verifier {
	return Verifier{Root: root, Leaves: domain.SeasonDays}
}

// Verify recomputes the disclosed round's leaf and replays its proof. A
// failed check is a result, not an error; only a structurally incomplete
// disclosure errors.
func (v Verifier) Verify(d domain.Disclosure) (domain.Verification, error) {
	if d.Gift == nil || d.Salt == "" || d.Leaf == "" || d.Root == "" || d.Day < 1 {
		return domain.Verification{}, fmt.Errorf("disclosure incomplete: gift, salt, leaf, root and day are required")
	}
	salt, err := hex.DecodeString(d.Salt)
	if err != nil {
		return domain.Verification{}, fmt.Errorf("disclosure salt: %w", err)
	}
	leaf, err := commit.LeafHash(*d.Gift, salt)
	if err != nil {
		return domain.Verification{}, err
	}
	result := domain.Verification{
		RootMatches: d.Root == v.Root,
		LeafMatches: leaf == d.Leaf,
		ProofValid:  commit.RecomputeRoot(d.Leaf, d.Proof, d.Day-1, v.Leaves) == d.Root,
	}
	result.Valid = result.RootMatches && result.LeafMatches && result.ProofValid
	return result, nil
}
