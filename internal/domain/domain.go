package domain

// SeasonDays is the number of scheduled rounds in a season.
const SeasonDays = 24

// Gift type identifiers. One per distribution rule variant.
const (
	TypeProportionalHolders = "proportional_holders"
	TypeDeterministicRandom = "deterministic_random"
	TypeTopBuyersAirdrop    = "top_buyers_airdrop"
	TypeNGODonation         = "ngo_donation"
	TypeLastSecondHour      = "last_second_hour"

	// TypeNGODonationAlias is an accepted input spelling, normalized to
	// TypeNGODonation on import.
	TypeNGODonationAlias = "full_donation_to_ngo"
)

// GiftSpec is the committed description of one round's payout rule. It carries
// no commitment artifacts; salt, leaf and proof are layered on top after the
// Merkle tree is built.
type GiftSpec struct {
	Day                int        `json:"day"`
	Type               string     `json:"type" enum:"proportional_holders,deterministic_random,top_buyers_airdrop,ngo_donation,last_second_hour"`
	Hint               string     `json:"hint"`
	SubHint            string     `json:"sub_hint,omitempty"`
	Params             GiftParams `json:"params"`
	DistributionSource string     `json:"distribution_source,omitempty"`
	Notes              string     `json:"notes,omitempty"`
}

// GiftParams is a tagged union keyed by GiftSpec.Type: exactly the variant
// matching the type must be populated. Validated once, at commitment time.
type GiftParams struct {
	Proportional *ProportionalParams `json:"proportional,omitempty"`
	Random       *RandomParams       `json:"random,omitempty"`
	TopBuyers    *TopBuyersParams    `json:"top_buyers,omitempty"`
	Donation     *DonationParams     `json:"donation,omitempty"`
	LastSecond   *LastSecondParams   `json:"last_second,omitempty"`

	// TokenAirdrop optionally enables the hourly token sub-lottery for a
	// round, orthogonal to the main rule.
	TokenAirdrop *TokenAirdropParams `json:"token_airdrop,omitempty"`
}

type ProportionalParams struct {
	MinBalance        Amount `json:"min_balance"`
	AllocationPercent int64  `json:"allocation_percent"`
}

type RandomParams struct {
	MinBalance        Amount `json:"min_balance"`
	AllocationPercent int64  `json:"allocation_percent"`
	WinnerCount       int    `json:"winner_count"`
	Split             string `json:"split,omitempty" enum:"equal,proportional"`
}

type TopBuyersParams struct {
	TopN              int    `json:"top_n"`
	AllocationPercent int64  `json:"allocation_percent"`
	Split             string `json:"split,omitempty" enum:"equal,weighted"`
}

type DonationParams struct {
	Wallet  string `json:"wallet"`
	Percent int64  `json:"percent"`
}

type LastSecondParams struct {
	AllocationPercent int64 `json:"allocation_percent"`
	WinnerCount       int   `json:"winner_count"`
	Hour              int   `json:"hour,omitempty"`
	FromMinute        int   `json:"from_minute,omitempty"`
}

type TokenAirdropParams struct {
	TotalAmount Amount `json:"total_amount"`
	Mint        string `json:"mint,omitempty"`
}

// Commitment is the published Merkle root binding a season's gift specs.
// Created once before day 1 and immutable afterwards.
type Commitment struct {
	Season      string `json:"season"`
	Root        string `json:"root"`
	CommittedAt string `json:"committed_at" format:"date-time"`
}

// Artifact is a round's commitment material: the salt is generated at
// commitment time, the leaf binds spec+salt and the proof climbs to the root.
type Artifact struct {
	Day       int      `json:"day"`
	Salt      string   `json:"salt"`
	Leaf      string   `json:"leaf"`
	Proof     []string `json:"proof"`
	LeafIndex int      `json:"leaf_index"`
}

// HolderSnapshot is a read-only balance record supplied by the chain
// ingestion collaborator on the day of execution.
type HolderSnapshot struct {
	Wallet  string `json:"wallet"`
	Balance Amount `json:"balance"`
	Rank    int    `json:"rank,omitempty"`
}

// TransactionRecord is a read-only classified transaction supplied by the
// chain ingestion collaborator.
type TransactionRecord struct {
	FromWallet string `json:"from_wallet"`
	ToWallet   string `json:"to_wallet"`
	Amount     Amount `json:"amount"`
	Kind       string `json:"kind" enum:"buy,sell,transfer"`
	Fee        Amount `json:"fee,omitempty"`
	Timestamp  string `json:"timestamp" format:"date-time"`
}

// Winner is one wallet/amount pair produced by evaluating a round's rule.
// Execution results are values; a Winner is never mutated after creation.
type Winner struct {
	Wallet  string  `json:"wallet"`
	Amount  Amount  `json:"amount"`
	Balance *Amount `json:"balance,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

// TokenAirdrop is one hourly sub-lottery payout.
type TokenAirdrop struct {
	Wallet string `json:"wallet"`
	Amount Amount `json:"amount"`
	Hour   int    `json:"hour"`
}

// ExecutionResult is the full outcome of evaluating one round. Remainder is
// the allocation lost to integer truncation; it is reported, not
// redistributed.
type ExecutionResult struct {
	Winners          []Winner       `json:"winners"`
	TotalDistributed Amount         `json:"total_distributed"`
	Remainder        Amount         `json:"remainder"`
	TokenAirdrops    []TokenAirdrop `json:"token_airdrops,omitempty"`
}

// Execution is a persisted evaluation of one day.
type Execution struct {
	ID         string          `json:"id"`
	Day        int             `json:"day"`
	Blockhash  string          `json:"blockhash"`
	PoolAmount Amount          `json:"pool_amount"`
	Result     ExecutionResult `json:"result"`
	ExecutedAt string          `json:"executed_at" format:"date-time"`
}

// Disclosure is what the reveal state machine lets out for a round. Which
// fields are populated depends on the calendar phase.
type Disclosure struct {
	Day     int       `json:"day"`
	Hint    string    `json:"hint,omitempty"`
	SubHint string    `json:"sub_hint,omitempty"`
	Gift    *GiftSpec `json:"gift,omitempty"`
	Salt    string    `json:"salt,omitempty"`
	Leaf    string    `json:"leaf,omitempty"`
	Proof   []string  `json:"proof,omitempty"`
	Root    string    `json:"root,omitempty"`
}

// Verification is the per-check outcome of verifying a disclosure against the
// published root. A mismatch is a result, never an error.
type Verification struct {
	Valid       bool `json:"valid"`
	RootMatches bool `json:"root_matches"`
	LeafMatches bool `json:"leaf_matches"`
	ProofValid  bool `json:"proof_valid"`
}

// Event is one audit log row.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
