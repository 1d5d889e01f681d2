// Package evaluate turns a round's gift spec and the day's chain data into
// winners and amounts. Evaluation is a pure function: identical inputs always
// produce an identical result. All arithmetic is integer-exact; allocation
// lost to floor division is reported as the result's remainder and never
// silently redistributed.
package evaluate

import (
	"fmt"
	"math/big"
	"sort"
	"time"

	"adventdrop/internal/domain"
	"adventdrop/internal/rng"
)

// Inputs is everything a single day's evaluation may read. Holders and
// transactions are the ingestion collaborator's snapshot for the round;
// Salt is the round's commitment salt; Blockhash seeds selection.
type Inputs struct {
	Transactions []domain.TransactionRecord
	Holders      []domain.HolderSnapshot
	PoolAmount   domain.Amount
	Blockhash    string
	Salt         []byte
}

// Evaluate dispatches on the gift type. Missing params for the resolved type
// are a configuration error and fail fatally; an empty eligible set is not an
// error and yields a zero result, leaving the skip decision to the caller.
func Evaluate(spec domain.GiftSpec, in Inputs) (domain.ExecutionResult, error) {
	var (
		res domain.ExecutionResult
		err error
	)
	switch domain.NormalizeType(spec.Type) {
	case domain.TypeProportionalHolders:
		res, err = evalProportional(spec.Params.Proportional, in)
	case domain.TypeDeterministicRandom:
		res, err = evalRandom(spec.Params.Random, in)
	case domain.TypeTopBuyersAirdrop:
		res, err = evalTopBuyers(spec.Params.TopBuyers, in)
	case domain.TypeNGODonation:
		res, err = evalDonation(spec.Params.Donation, in)
	case domain.TypeLastSecondHour:
		res, err = evalLastSecond(spec.Params.LastSecond, in)
	default:
		return domain.ExecutionResult{}, fmt.Errorf("unknown gift type %q", spec.Type)
	}
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	if spec.Params.TokenAirdrop != nil {
		airdrops, err := evalTokenAirdrop(spec.Params.TokenAirdrop, in)
		if err != nil {
			return domain.ExecutionResult{}, err
		}
		res.TokenAirdrops = airdrops
	}
	return res, nil
}

func evalProportional(p *domain.ProportionalParams, in Inputs) (domain.ExecutionResult, error) {
	if p == nil {
		return domain.ExecutionResult{}, fmt.Errorf("proportional params missing")
	}
	eligible := eligibleHolders(in.Holders, p.MinBalance)
	totalBalance := new(big.Int)
	for _, h := range eligible {
		totalBalance.Add(totalBalance, h.Balance.Int())
	}
	if len(eligible) == 0 || totalBalance.Sign() == 0 {
		return zeroResult(), nil
	}
	allocated := allocation(in.PoolAmount, p.AllocationPercent)
	den := new(big.Int).Mul(big.NewInt(100), totalBalance)
	winners := []domain.Winner{}
	total := new(big.Int)
	for _, h := range eligible {
		// share = floor(balance * pool * percent / (100 * totalBalance))
		num := new(big.Int).Mul(h.Balance.Int(), in.PoolAmount.Int())
		num.Mul(num, big.NewInt(p.AllocationPercent))
		share := num.Div(num, den)
		if share.Sign() == 0 {
			continue
		}
		total.Add(total, share)
		balance := h.Balance
		winners = append(winners, domain.Winner{
			Wallet:  h.Wallet,
			Amount:  domain.NewAmount(share),
			Balance: &balance,
			Reason:  domain.TypeProportionalHolders,
		})
	}
	return resultFor(winners, allocated, total), nil
}

func evalRandom(p *domain.RandomParams, in Inputs) (domain.ExecutionResult, error) {
	if p == nil {
		return domain.ExecutionResult{}, fmt.Errorf("random params missing")
	}
	eligible := eligibleHolders(in.Holders, p.MinBalance)
	if len(eligible) == 0 {
		return zeroResult(), nil
	}
	// Sort before shuffling so the permutation depends only on the seed, not
	// on the order the snapshot arrived in.
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].Wallet < eligible[j].Wallet })
	shuffled, err := rng.Shuffle(eligible, rng.DeriveSeed(in.Blockhash, in.Salt))
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("seed shuffle: %w", err)
	}
	count := p.WinnerCount
	if count > len(shuffled) {
		count = len(shuffled)
	}
	selected := shuffled[:count]
	allocated := allocation(in.PoolAmount, p.AllocationPercent)

	winners := []domain.Winner{}
	total := new(big.Int)
	if p.Split == "proportional" {
		selectedBalance := new(big.Int)
		for _, h := range selected {
			selectedBalance.Add(selectedBalance, h.Balance.Int())
		}
		if selectedBalance.Sign() == 0 {
			return zeroResult(), nil
		}
		for _, h := range selected {
			share := new(big.Int).Mul(h.Balance.Int(), allocated)
			share.Div(share, selectedBalance)
			if share.Sign() == 0 {
				continue
			}
			total.Add(total, share)
			balance := h.Balance
			winners = append(winners, domain.Winner{
				Wallet:  h.Wallet,
				Amount:  domain.NewAmount(share),
				Balance: &balance,
				Reason:  domain.TypeDeterministicRandom,
			})
		}
	} else {
		share := new(big.Int).Div(allocated, big.NewInt(int64(count)))
		for _, h := range selected {
			if share.Sign() == 0 {
				break
			}
			total.Add(total, share)
			balance := h.Balance
			winners = append(winners, domain.Winner{
				Wallet:  h.Wallet,
				Amount:  domain.NewAmount(share),
				Balance: &balance,
				Reason:  domain.TypeDeterministicRandom,
			})
		}
	}
	return resultFor(winners, allocated, total), nil
}

func evalTopBuyers(p *domain.TopBuyersParams, in Inputs) (domain.ExecutionResult, error) {
	if p == nil {
		return domain.ExecutionResult{}, fmt.Errorf("top_buyers params missing")
	}
	volumes := map[string]*big.Int{}
	for _, tx := range in.Transactions {
		if tx.Kind != "buy" {
			continue
		}
		v, ok := volumes[tx.ToWallet]
		if !ok {
			v = new(big.Int)
			volumes[tx.ToWallet] = v
		}
		v.Add(v, tx.Amount.Int())
	}
	if len(volumes) == 0 {
		return zeroResult(), nil
	}
	type buyer struct {
		wallet string
		volume *big.Int
	}
	ranked := make([]buyer, 0, len(volumes))
	for w, v := range volumes {
		ranked = append(ranked, buyer{wallet: w, volume: v})
	}
	// Descending by volume; ties at any rank break by wallet lexical order so
	// the cutoff is deterministic.
	sort.Slice(ranked, func(i, j int) bool {
		c := ranked[i].volume.Cmp(ranked[j].volume)
		if c != 0 {
			return c > 0
		}
		return ranked[i].wallet < ranked[j].wallet
	})
	if len(ranked) > p.TopN {
		ranked = ranked[:p.TopN]
	}
	allocated := allocation(in.PoolAmount, p.AllocationPercent)
	winners := []domain.Winner{}
	total := new(big.Int)
	if p.Split == "weighted" {
		topVolume := new(big.Int)
		for _, b := range ranked {
			topVolume.Add(topVolume, b.volume)
		}
		if topVolume.Sign() == 0 {
			return zeroResult(), nil
		}
		for _, b := range ranked {
			share := new(big.Int).Mul(b.volume, allocated)
			share.Div(share, topVolume)
			if share.Sign() == 0 {
				continue
			}
			total.Add(total, share)
			winners = append(winners, domain.Winner{
				Wallet: b.wallet,
				Amount: domain.NewAmount(share),
				Reason: domain.TypeTopBuyersAirdrop,
			})
		}
	} else {
		share := new(big.Int).Div(allocated, big.NewInt(int64(len(ranked))))
		for _, b := range ranked {
			if share.Sign() == 0 {
				break
			}
			total.Add(total, share)
			winners = append(winners, domain.Winner{
				Wallet: b.wallet,
				Amount: domain.NewAmount(share),
				Reason: domain.TypeTopBuyersAirdrop,
			})
		}
	}
	return resultFor(winners, allocated, total), nil
}

func evalDonation(p *domain.DonationParams, in Inputs) (domain.ExecutionResult, error) {
	if p == nil {
		return domain.ExecutionResult{}, fmt.Errorf("donation params missing")
	}
	amount := allocation(in.PoolAmount, p.Percent)
	winners := []domain.Winner{{
		Wallet: p.Wallet,
		Amount: domain.NewAmount(amount),
		Reason: domain.TypeNGODonation,
	}}
	return resultFor(winners, amount, new(big.Int).Set(amount)), nil
}

func evalLastSecond(p *domain.LastSecondParams, in Inputs) (domain.ExecutionResult, error) {
	if p == nil {
		return domain.ExecutionResult{}, fmt.Errorf("last_second params missing")
	}
	hour, fromMinute := p.Hour, p.FromMinute
	if hour == 0 && fromMinute == 0 {
		// Unset window: the round's final quarter hour.
		hour, fromMinute = 23, 45
	}
	set := map[string]bool{}
	for _, tx := range in.Transactions {
		t, err := time.Parse(time.RFC3339, tx.Timestamp)
		if err != nil {
			continue
		}
		t = t.UTC()
		if t.Hour() != hour || t.Minute() < fromMinute {
			continue
		}
		set[actorWallet(tx)] = true
	}
	if len(set) == 0 {
		return zeroResult(), nil
	}
	wallets := make([]string, 0, len(set))
	for w := range set {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)
	shuffled, err := rng.Shuffle(wallets, rng.DeriveSeed(in.Blockhash, in.Salt))
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("seed shuffle: %w", err)
	}
	count := p.WinnerCount
	if count > len(shuffled) {
		count = len(shuffled)
	}
	allocated := allocation(in.PoolAmount, p.AllocationPercent)
	share := new(big.Int).Div(allocated, big.NewInt(int64(count)))
	winners := []domain.Winner{}
	total := new(big.Int)
	for _, w := range shuffled[:count] {
		if share.Sign() == 0 {
			break
		}
		total.Add(total, share)
		winners = append(winners, domain.Winner{
			Wallet: w,
			Amount: domain.NewAmount(share),
			Reason: domain.TypeLastSecondHour,
		})
	}
	return resultFor(winners, allocated, total), nil
}

// evalTokenAirdrop runs the hourly sub-lottery: one winner per hour from that
// hour's active wallets, each receiving total/24. Hours with no activity are
// skipped; their tranche stays undistributed.
func evalTokenAirdrop(p *domain.TokenAirdropParams, in Inputs) ([]domain.TokenAirdrop, error) {
	perHour := new(big.Int).Div(p.TotalAmount.Int(), big.NewInt(24))
	if perHour.Sign() == 0 {
		return nil, nil
	}
	byHour := map[int]map[string]bool{}
	for _, tx := range in.Transactions {
		t, err := time.Parse(time.RFC3339, tx.Timestamp)
		if err != nil {
			continue
		}
		h := t.UTC().Hour()
		if byHour[h] == nil {
			byHour[h] = map[string]bool{}
		}
		byHour[h][actorWallet(tx)] = true
	}
	var airdrops []domain.TokenAirdrop
	for h := 0; h < 24; h++ {
		set := byHour[h]
		if len(set) == 0 {
			continue
		}
		wallets := make([]string, 0, len(set))
		for w := range set {
			wallets = append(wallets, w)
		}
		sort.Strings(wallets)
		shuffled, err := rng.Shuffle(wallets, rng.HourSeed(in.Blockhash, in.Salt, h))
		if err != nil {
			return nil, fmt.Errorf("hour %d shuffle: %w", h, err)
		}
		airdrops = append(airdrops, domain.TokenAirdrop{
			Wallet: shuffled[0],
			Amount: domain.NewAmount(perHour),
			Hour:   h,
		})
	}
	return airdrops, nil
}

// actorWallet is the wallet credited with a transaction: the recipient for a
// buy (the buyer receives tokens), the sender otherwise.
func actorWallet(tx domain.TransactionRecord) string {
	if tx.Kind == "buy" {
		return tx.ToWallet
	}
	return tx.FromWallet
}

func eligibleHolders(holders []domain.HolderSnapshot, min domain.Amount) []domain.HolderSnapshot {
	out := []domain.HolderSnapshot{}
	for _, h := range holders {
		if h.Balance.Cmp(min) >= 0 {
			out = append(out, h)
		}
	}
	return out
}

// allocation = floor(pool * percent / 100).
func allocation(pool domain.Amount, percent int64) *big.Int {
	v := new(big.Int).Mul(pool.Int(), big.NewInt(percent))
	return v.Div(v, big.NewInt(100))
}

func zeroResult() domain.ExecutionResult {
	return domain.ExecutionResult{
		Winners:          []domain.Winner{},
		TotalDistributed: domain.AmountFromInt64(0),
		Remainder:        domain.AmountFromInt64(0),
	}
}

func resultFor(winners []domain.Winner, allocated, total *big.Int) domain.ExecutionResult {
	return domain.ExecutionResult{
		Winners:          winners,
		TotalDistributed: domain.NewAmount(total),
		Remainder:        domain.NewAmount(new(big.Int).Sub(allocated, total)),
	}
}
