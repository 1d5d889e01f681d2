package domain

import "fmt"

// NormalizeType maps accepted input spellings to the canonical type id.
func NormalizeType(t string) string {
	if t == TypeNGODonationAlias {
		return TypeNGODonation
	}
	return t
}

// ValidateFor checks that the variant matching the gift type is present and
// well formed. Commitment refuses any spec that fails here; evaluation trusts
// it was run.
func (p GiftParams) ValidateFor(giftType string) error {
	switch NormalizeType(giftType) {
	case TypeProportionalHolders:
		if p.Proportional == nil {
			return fmt.Errorf("params.proportional required for type %s", giftType)
		}
		if err := percentInRange(p.Proportional.AllocationPercent); err != nil {
			return err
		}
	case TypeDeterministicRandom:
		if p.Random == nil {
			return fmt.Errorf("params.random required for type %s", giftType)
		}
		if p.Random.WinnerCount <= 0 {
			return fmt.Errorf("params.random.winner_count must be positive")
		}
		if err := percentInRange(p.Random.AllocationPercent); err != nil {
			return err
		}
		switch p.Random.Split {
		case "", "equal", "proportional":
		default:
			return fmt.Errorf("params.random.split %q not one of equal, proportional", p.Random.Split)
		}
	case TypeTopBuyersAirdrop:
		if p.TopBuyers == nil {
			return fmt.Errorf("params.top_buyers required for type %s", giftType)
		}
		if p.TopBuyers.TopN <= 0 {
			return fmt.Errorf("params.top_buyers.top_n must be positive")
		}
		if err := percentInRange(p.TopBuyers.AllocationPercent); err != nil {
			return err
		}
		switch p.TopBuyers.Split {
		case "", "equal", "weighted":
		default:
			return fmt.Errorf("params.top_buyers.split %q not one of equal, weighted", p.TopBuyers.Split)
		}
	case TypeNGODonation:
		if p.Donation == nil {
			return fmt.Errorf("params.donation required for type %s", giftType)
		}
		if p.Donation.Wallet == "" {
			return fmt.Errorf("params.donation.wallet required")
		}
		if err := percentInRange(p.Donation.Percent); err != nil {
			return err
		}
	case TypeLastSecondHour:
		if p.LastSecond == nil {
			return fmt.Errorf("params.last_second required for type %s", giftType)
		}
		if p.LastSecond.WinnerCount <= 0 {
			return fmt.Errorf("params.last_second.winner_count must be positive")
		}
		if err := percentInRange(p.LastSecond.AllocationPercent); err != nil {
			return err
		}
		if p.LastSecond.Hour < 0 || p.LastSecond.Hour > 23 {
			return fmt.Errorf("params.last_second.hour must be in 0..23")
		}
		if p.LastSecond.FromMinute < 0 || p.LastSecond.FromMinute > 59 {
			return fmt.Errorf("params.last_second.from_minute must be in 0..59")
		}
	default:
		return fmt.Errorf("unknown gift type %q", giftType)
	}
	if p.TokenAirdrop != nil && p.TokenAirdrop.TotalAmount.IsZero() {
		return fmt.Errorf("params.token_airdrop.total_amount must be positive")
	}
	return nil
}

func percentInRange(v int64) error {
	if v <= 0 || v > 100 {
		return fmt.Errorf("allocation percent %d out of range 1..100", v)
	}
	return nil
}
