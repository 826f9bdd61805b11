package reconciliation

import (
	"math"
	"sort"

	"github.com/greenpass/greenpass/internal/money"
	"github.com/greenpass/greenpass/internal/shared"
)

// Classification labels the sign of a variance.
type Classification string

const (
	Shortage Classification = "shortage"
	Overage  Classification = "overage"
	Balanced Classification = "balanced"
)

// StandardDenominations lists PGK notes and coins, largest first.
var StandardDenominations = []money.Amount{
	money.FromMajor(100), money.FromMajor(50), money.FromMajor(20), money.FromMajor(10),
	money.FromMajor(5), money.FromMajor(2), money.FromMajor(1),
	money.FromMinor(50), money.FromMinor(20), money.FromMinor(10), money.FromMinor(5),
}

// DenominationCount is a counted stack of one note or coin.
type DenominationCount struct {
	Denomination money.Amount `json:"denomination"`
	Count        int64        `json:"count"`
}

// Subtotal returns denomination × count.
func (d DenominationCount) Subtotal() (money.Amount, error) {
	return d.Denomination.Mul(d.Count)
}

// Input is a drawer count for a trading period.
type Input struct {
	OpeningFloat money.Amount
	Counts       []DenominationCount
	ExpectedCash money.Amount
}

// Result is the computed variance. It is display data only.
type Result struct {
	OpeningFloat   money.Amount        `json:"opening_float"`
	Counts         []DenominationCount `json:"counts"`
	CountedTotal   money.Amount        `json:"counted_total"`
	ExpectedCash   money.Amount        `json:"expected_cash"`
	Expected       money.Amount        `json:"expected_total"`
	Variance       money.Amount        `json:"variance"`
	Classification Classification      `json:"classification"`
}

// Classify maps a signed variance to its label.
func Classify(variance money.Amount) Classification {
	switch {
	case variance < 0:
		return Shortage
	case variance > 0:
		return Overage
	default:
		return Balanced
	}
}

// Calculate compares the counted drawer against float plus expected cash.
// Repeated denominations are merged.
func Calculate(in Input) (Result, error) {
	if in.OpeningFloat < 0 {
		return Result{}, shared.Invalid("opening float must not be negative")
	}
	if in.ExpectedCash < 0 {
		return Result{}, shared.Invalid("expected cash must not be negative")
	}
	merged := make(map[money.Amount]int64, len(in.Counts))
	for _, c := range in.Counts {
		if c.Denomination <= 0 {
			return Result{}, shared.Invalid("denomination %s must be positive", c.Denomination)
		}
		if c.Count < 0 {
			return Result{}, shared.Invalid("count for %s must not be negative", c.Denomination)
		}
		if merged[c.Denomination] > math.MaxInt64-c.Count {
			return Result{}, shared.Invalid("count for %s is too large", c.Denomination)
		}
		merged[c.Denomination] += c.Count
	}
	counts := make([]DenominationCount, 0, len(merged))
	var counted money.Amount
	for denom, n := range merged {
		dc := DenominationCount{Denomination: denom, Count: n}
		sub, err := dc.Subtotal()
		if err != nil || counted > money.MaxAmount-sub {
			return Result{}, shared.Invalid("counted total for %s is too large", denom)
		}
		counts = append(counts, dc)
		counted = counted.Add(sub)
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Denomination > counts[j].Denomination })

	expected := in.OpeningFloat.Add(in.ExpectedCash)
	variance := counted.Diff(expected)
	return Result{
		OpeningFloat:   in.OpeningFloat,
		Counts:         counts,
		CountedTotal:   counted,
		ExpectedCash:   in.ExpectedCash,
		Expected:       expected,
		Variance:       variance,
		Classification: Classify(variance),
	}, nil
}
