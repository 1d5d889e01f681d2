package evaluate

import (
	"fmt"
	"math/big"
	"testing"

	"adventdrop/internal/domain"
)

func amt(n int64) domain.Amount { return domain.AmountFromInt64(n) }

func testSalt() []byte { return []byte("0123456789abcdef0123456789abcdef") }

func holders(balances map[string]int64) []domain.HolderSnapshot {
	out := make([]domain.HolderSnapshot, 0, len(balances))
	for w, b := range balances {
		out = append(out, domain.HolderSnapshot{Wallet: w, Balance: amt(b)})
	}
	return out
}

func TestProportionalSharesAndMinBalance(t *testing.T) {
	spec := domain.GiftSpec{
		Day:  1,
		Type: domain.TypeProportionalHolders,
		Params: domain.GiftParams{
			Proportional: &domain.ProportionalParams{MinBalance: amt(100), AllocationPercent: 50},
		},
	}
	in := Inputs{
		Holders:    holders(map[string]int64{"walletA": 600, "walletB": 400, "walletC": 50}),
		PoolAmount: amt(1_000_000),
		Blockhash:  "bh",
		Salt:       testSalt(),
	}
	res, err := Evaluate(spec, in)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Winners) != 2 {
		t.Fatalf("expected 2 winners, got %d", len(res.Winners))
	}
	got := map[string]string{}
	for _, w := range res.Winners {
		got[w.Wallet] = w.Amount.String()
	}
	if got["walletA"] != "300000" || got["walletB"] != "200000" {
		t.Fatalf("unexpected shares: %v", got)
	}
	if res.TotalDistributed.String() != "500000" || res.Remainder.String() != "0" {
		t.Fatalf("total %s remainder %s", res.TotalDistributed.String(), res.Remainder.String())
	}
}

func TestProportionalFloorRemainder(t *testing.T) {
	spec := domain.GiftSpec{
		Day:  1,
		Type: domain.TypeProportionalHolders,
		Params: domain.GiftParams{
			Proportional: &domain.ProportionalParams{MinBalance: amt(1), AllocationPercent: 100},
		},
	}
	in := Inputs{
		Holders:    holders(map[string]int64{"a": 333, "b": 333, "c": 334}),
		PoolAmount: amt(100),
		Salt:       testSalt(),
	}
	res, err := Evaluate(spec, in)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	// Every share floors to 33; the lost unit shows up as remainder.
	if res.TotalDistributed.String() != "99" || res.Remainder.String() != "1" {
		t.Fatalf("total %s remainder %s", res.TotalDistributed.String(), res.Remainder.String())
	}
}

func TestProportionalConservationBound(t *testing.T) {
	spec := domain.GiftSpec{
		Day:  1,
		Type: domain.TypeProportionalHolders,
		Params: domain.GiftParams{
			Proportional: &domain.ProportionalParams{MinBalance: amt(1), AllocationPercent: 73},
		},
	}
	bal := map[string]int64{}
	for i := 0; i < 10; i++ {
		bal[fmt.Sprintf("wallet%02d", i)] = int64(7*i*i + 13*i + 1)
	}
	in := Inputs{Holders: holders(bal), PoolAmount: amt(999_983), Salt: testSalt()}
	res, err := Evaluate(spec, in)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	allocated := new(big.Int).Mul(in.PoolAmount.Int(), big.NewInt(73))
	allocated.Div(allocated, big.NewInt(100))
	sum := new(big.Int)
	for _, w := range res.Winners {
		sum.Add(sum, w.Amount.Int())
	}
	if sum.Cmp(res.TotalDistributed.Int()) != 0 {
		t.Fatalf("winner sum %s != total %s", sum, res.TotalDistributed.String())
	}
	shortfall := new(big.Int).Sub(allocated, sum)
	if shortfall.Cmp(res.Remainder.Int()) != 0 {
		t.Fatalf("remainder %s != allocated-sum %s", res.Remainder.String(), shortfall)
	}
	// Each of the 10 shares floors at most one unit away.
	if shortfall.Sign() < 0 || shortfall.Cmp(big.NewInt(10)) > 0 {
		t.Fatalf("shortfall %s outside 0..10", shortfall)
	}
}

func TestProportionalNoEligibleHolders(t *testing.T) {
	spec := domain.GiftSpec{
		Day:  1,
		Type: domain.TypeProportionalHolders,
		Params: domain.GiftParams{
			Proportional: &domain.ProportionalParams{MinBalance: amt(1000), AllocationPercent: 50},
		},
	}
	res, err := Evaluate(spec, Inputs{
		Holders:    holders(map[string]int64{"a": 10}),
		PoolAmount: amt(100),
		Salt:       testSalt(),
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Winners) != 0 || res.TotalDistributed.String() != "0" {
		t.Fatalf("expected zero result, got %+v", res)
	}
}

func TestRandomIsDeterministic(t *testing.T) {
	spec := domain.GiftSpec{
		Day:  3,
		Type: domain.TypeDeterministicRandom,
		Params: domain.GiftParams{
			Random: &domain.RandomParams{MinBalance: amt(1), AllocationPercent: 100, WinnerCount: 3, Split: "equal"},
		},
	}
	in := Inputs{
		Holders:    holders(map[string]int64{"a": 10, "b": 20, "c": 30, "d": 40, "e": 50, "f": 60, "g": 70}),
		PoolAmount: amt(100),
		Blockhash:  "4sGjMW1sUnHzSxGspuhpqLDx6wiyjNtZ",
		Salt:       testSalt(),
	}
	first, err := Evaluate(spec, in)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	second, err := Evaluate(spec, in)
	if err != nil {
		t.Fatalf("re-evaluate: %v", err)
	}
	if len(first.Winners) != 3 {
		t.Fatalf("expected 3 winners, got %d", len(first.Winners))
	}
	for i := range first.Winners {
		if first.Winners[i].Wallet != second.Winners[i].Wallet ||
			first.Winners[i].Amount.String() != second.Winners[i].Amount.String() {
			t.Fatalf("runs differ at %d: %+v vs %+v", i, first.Winners[i], second.Winners[i])
		}
		// Equal split of 100 over 3 winners.
		if first.Winners[i].Amount.String() != "33" {
			t.Fatalf("expected share 33, got %s", first.Winners[i].Amount.String())
		}
	}
	if first.Remainder.String() != "1" {
		t.Fatalf("expected remainder 1, got %s", first.Remainder.String())
	}

	in.Blockhash = "a-different-blockhash"
	third, err := Evaluate(spec, in)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	same := true
	for i := range first.Winners {
		if first.Winners[i].Wallet != third.Winners[i].Wallet {
			same = false
		}
	}
	if same {
		t.Log("different blockhash picked the same winner set; permutation may coincide for small inputs")
	}
}

func TestRandomWinnerCountCapped(t *testing.T) {
	spec := domain.GiftSpec{
		Day:  3,
		Type: domain.TypeDeterministicRandom,
		Params: domain.GiftParams{
			Random: &domain.RandomParams{MinBalance: amt(1), AllocationPercent: 100, WinnerCount: 10, Split: "equal"},
		},
	}
	res, err := Evaluate(spec, Inputs{
		Holders:    holders(map[string]int64{"a": 10, "b": 20}),
		PoolAmount: amt(100),
		Blockhash:  "bh",
		Salt:       testSalt(),
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Winners) != 2 {
		t.Fatalf("expected winner count capped at 2, got %d", len(res.Winners))
	}
}

func TestRandomProportionalSplit(t *testing.T) {
	spec := domain.GiftSpec{
		Day:  3,
		Type: domain.TypeDeterministicRandom,
		Params: domain.GiftParams{
			Random: &domain.RandomParams{MinBalance: amt(1), AllocationPercent: 100, WinnerCount: 2, Split: "proportional"},
		},
	}
	res, err := Evaluate(spec, Inputs{
		Holders:    holders(map[string]int64{"a": 100, "b": 300}),
		PoolAmount: amt(400),
		Blockhash:  "bh",
		Salt:       testSalt(),
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	got := map[string]string{}
	for _, w := range res.Winners {
		got[w.Wallet] = w.Amount.String()
	}
	if got["a"] != "100" || got["b"] != "300" {
		t.Fatalf("unexpected proportional split: %v", got)
	}
}

func TestTopBuyersRankingAndTieBreak(t *testing.T) {
	spec := domain.GiftSpec{
		Day:  5,
		Type: domain.TypeTopBuyersAirdrop,
		Params: domain.GiftParams{
			TopBuyers: &domain.TopBuyersParams{TopN: 1, AllocationPercent: 100, Split: "equal"},
		},
	}
	txs := []domain.TransactionRecord{
		{FromWallet: "pool", ToWallet: "walletB", Amount: amt(60), Kind: "buy", Timestamp: "2026-12-05T10:00:00Z"},
		{FromWallet: "pool", ToWallet: "walletB", Amount: amt(40), Kind: "buy", Timestamp: "2026-12-05T11:00:00Z"},
		{FromWallet: "pool", ToWallet: "walletA", Amount: amt(100), Kind: "buy", Timestamp: "2026-12-05T12:00:00Z"},
		{FromWallet: "walletC", ToWallet: "pool", Amount: amt(500), Kind: "sell", Timestamp: "2026-12-05T13:00:00Z"},
	}
	res, err := Evaluate(spec, Inputs{Transactions: txs, PoolAmount: amt(1000), Salt: testSalt()})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	// walletA and walletB tie at 100 bought; lexical order breaks the tie.
	if len(res.Winners) != 1 || res.Winners[0].Wallet != "walletA" {
		t.Fatalf("expected walletA to win the tie, got %+v", res.Winners)
	}
	if res.Winners[0].Amount.String() != "1000" {
		t.Fatalf("expected full allocation, got %s", res.Winners[0].Amount.String())
	}
}

func TestTopBuyersWeightedSplit(t *testing.T) {
	spec := domain.GiftSpec{
		Day:  5,
		Type: domain.TypeTopBuyersAirdrop,
		Params: domain.GiftParams{
			TopBuyers: &domain.TopBuyersParams{TopN: 2, AllocationPercent: 100, Split: "weighted"},
		},
	}
	txs := []domain.TransactionRecord{
		{FromWallet: "pool", ToWallet: "a", Amount: amt(300), Kind: "buy", Timestamp: "2026-12-05T10:00:00Z"},
		{FromWallet: "pool", ToWallet: "b", Amount: amt(100), Kind: "buy", Timestamp: "2026-12-05T11:00:00Z"},
	}
	res, err := Evaluate(spec, Inputs{Transactions: txs, PoolAmount: amt(400), Salt: testSalt()})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	got := map[string]string{}
	for _, w := range res.Winners {
		got[w.Wallet] = w.Amount.String()
	}
	if got["a"] != "300" || got["b"] != "100" {
		t.Fatalf("unexpected weighted split: %v", got)
	}
}

func TestDonationSendsAllocationToWallet(t *testing.T) {
	spec := domain.GiftSpec{
		Day:  7,
		Type: domain.TypeNGODonationAlias,
		Params: domain.GiftParams{
			Donation: &domain.DonationParams{Wallet: "NGOwallet111", Percent: 100},
		},
	}
	res, err := Evaluate(spec, Inputs{PoolAmount: amt(123_456), Salt: testSalt()})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Winners) != 1 || res.Winners[0].Wallet != "NGOwallet111" {
		t.Fatalf("expected single NGO winner, got %+v", res.Winners)
	}
	if res.Winners[0].Amount.String() != "123456" || res.Remainder.String() != "0" {
		t.Fatalf("amount %s remainder %s", res.Winners[0].Amount.String(), res.Remainder.String())
	}
}

func TestLastSecondWindowFiltersActors(t *testing.T) {
	spec := domain.GiftSpec{
		Day:  9,
		Type: domain.TypeLastSecondHour,
		Params: domain.GiftParams{
			LastSecond: &domain.LastSecondParams{AllocationPercent: 100, WinnerCount: 1},
		},
	}
	txs := []domain.TransactionRecord{
		{FromWallet: "pool", ToWallet: "late", Amount: amt(10), Kind: "buy", Timestamp: "2026-12-09T23:50:00Z"},
		{FromWallet: "early", ToWallet: "pool", Amount: amt(10), Kind: "sell", Timestamp: "2026-12-09T22:00:00Z"},
		{FromWallet: "pool", ToWallet: "justmissed", Amount: amt(10), Kind: "buy", Timestamp: "2026-12-09T23:44:59Z"},
	}
	res, err := Evaluate(spec, Inputs{Transactions: txs, PoolAmount: amt(500), Blockhash: "bh", Salt: testSalt()})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	// Only the 23:50 buy falls in the default 23:45+ window.
	if len(res.Winners) != 1 || res.Winners[0].Wallet != "late" {
		t.Fatalf("expected single winner 'late', got %+v", res.Winners)
	}
	if res.Winners[0].Amount.String() != "500" {
		t.Fatalf("expected 500, got %s", res.Winners[0].Amount.String())
	}
}

func TestLastSecondNoActivity(t *testing.T) {
	spec := domain.GiftSpec{
		Day:  9,
		Type: domain.TypeLastSecondHour,
		Params: domain.GiftParams{
			LastSecond: &domain.LastSecondParams{AllocationPercent: 100, WinnerCount: 1},
		},
	}
	res, err := Evaluate(spec, Inputs{PoolAmount: amt(500), Blockhash: "bh", Salt: testSalt()})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Winners) != 0 || res.TotalDistributed.String() != "0" {
		t.Fatalf("expected zero result, got %+v", res)
	}
}

func TestTokenAirdropOneWinnerPerActiveHour(t *testing.T) {
	spec := domain.GiftSpec{
		Day:  11,
		Type: domain.TypeNGODonation,
		Params: domain.GiftParams{
			Donation:     &domain.DonationParams{Wallet: "NGOwallet111", Percent: 100},
			TokenAirdrop: &domain.TokenAirdropParams{TotalAmount: amt(2400)},
		},
	}
	txs := []domain.TransactionRecord{
		{FromWallet: "pool", ToWallet: "morning", Amount: amt(10), Kind: "buy", Timestamp: "2026-12-11T00:15:00Z"},
		{FromWallet: "pool", ToWallet: "noonish", Amount: amt(10), Kind: "buy", Timestamp: "2026-12-11T12:30:00Z"},
	}
	res, err := Evaluate(spec, Inputs{Transactions: txs, PoolAmount: amt(100), Blockhash: "bh", Salt: testSalt()})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.TokenAirdrops) != 2 {
		t.Fatalf("expected 2 hourly airdrops, got %d", len(res.TokenAirdrops))
	}
	if res.TokenAirdrops[0].Hour != 0 || res.TokenAirdrops[0].Wallet != "morning" {
		t.Fatalf("hour 0 airdrop wrong: %+v", res.TokenAirdrops[0])
	}
	if res.TokenAirdrops[1].Hour != 12 || res.TokenAirdrops[1].Wallet != "noonish" {
		t.Fatalf("hour 12 airdrop wrong: %+v", res.TokenAirdrops[1])
	}
	for _, a := range res.TokenAirdrops {
		if a.Amount.String() != "100" {
			t.Fatalf("expected per-hour tranche 100, got %s", a.Amount.String())
		}
	}
}

func TestEvaluateUnknownType(t *testing.T) {
	if _, err := Evaluate(domain.GiftSpec{Type: "mystery"}, Inputs{Salt: testSalt()}); err == nil {
		t.Fatal("expected error for unknown gift type")
	}
}

func TestEvaluateMissingParams(t *testing.T) {
	spec := domain.GiftSpec{Day: 1, Type: domain.TypeProportionalHolders}
	if _, err := Evaluate(spec, Inputs{PoolAmount: amt(100), Salt: testSalt()}); err == nil {
		t.Fatal("expected error for missing params")
	}
}
