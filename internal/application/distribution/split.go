package distribution

import (
	"math/big"
	"sort"

	"tokenshare-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdminShareRatio is the admin's fixed cut of every distribution; holders share the rest.
var AdminShareRatio = decimal.RequireFromString("0.30")

// ProfitPerTokenPrecision is the number of decimal places kept for profit_per_token.
const ProfitPerTokenPrecision = 18

// HolderTokens is one holder's active tokens in a project, summed over holdings.
type HolderTokens struct {
	UserID uuid.UUID
	Tokens int64
}

// Credit is one holder's share of the user pool.
type Credit struct {
	UserID       uuid.UUID       `json:"user_id"`
	TokenAmount  int64           `json:"token_amount"`
	ProfitAmount decimal.Decimal `json:"profit_amount"`
}

// Split is the full breakdown of a profit amount.
type Split struct {
	TotalProfit     decimal.Decimal `json:"total_profit"`
	AdminShare      decimal.Decimal `json:"admin_share"`
	UserShare       decimal.Decimal `json:"user_share"`
	ProfitPerToken  decimal.Decimal `json:"profit_per_token"`
	TotalUserTokens int64           `json:"total_user_tokens"`
	Credits         []Credit        `json:"per_holder_credits"`
}

// ValidateProfit accepts positive amounts with at most two decimal places.
func ValidateProfit(profit decimal.Decimal) error {
	if !profit.IsPositive() || !profit.Equal(profit.Round(2)) {
		return domain.ErrInvalidProfit
	}
	return nil
}

// ComputeSplit divides profit between the admin and the holders.
//
// adminShare is rounded to cents and userShare is the exact remainder, so the
// two always add up to profit. Each credit is floor(userShare * tokens / total)
// in cents; the cents left over go to the largest holder (lowest user id on
// ties), so credits add up to userShare exactly.
func ComputeSplit(profit decimal.Decimal, holders []HolderTokens) (Split, error) {
	if err := ValidateProfit(profit); err != nil {
		return Split{}, err
	}
	var total int64
	for _, h := range holders {
		if h.Tokens > 0 {
			total += h.Tokens
		}
	}
	if total == 0 {
		return Split{}, domain.ErrNoHolders
	}

	adminShare := profit.Mul(AdminShareRatio).Round(2)
	userShare := profit.Sub(adminShare)

	sorted := make([]HolderTokens, 0, len(holders))
	for _, h := range holders {
		if h.Tokens > 0 {
			sorted = append(sorted, h)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].UserID.String() < sorted[j].UserID.String()
	})

	poolCents := userShare.Shift(2).BigInt()
	totalBig := big.NewInt(total)
	distributed := new(big.Int)
	cents := make([]*big.Int, len(sorted))
	largest := 0
	for i, h := range sorted {
		c := new(big.Int).Mul(poolCents, big.NewInt(h.Tokens))
		c.Quo(c, totalBig)
		cents[i] = c
		distributed.Add(distributed, c)
		if h.Tokens > sorted[largest].Tokens {
			largest = i
		}
	}
	cents[largest].Add(cents[largest], new(big.Int).Sub(poolCents, distributed))

	credits := make([]Credit, len(sorted))
	for i, h := range sorted {
		credits[i] = Credit{
			UserID:       h.UserID,
			TokenAmount:  h.Tokens,
			ProfitAmount: decimal.NewFromBigInt(cents[i], -2),
		}
	}

	return Split{
		TotalProfit:     profit,
		AdminShare:      adminShare,
		UserShare:       userShare,
		ProfitPerToken:  userShare.DivRound(decimal.NewFromInt(total), ProfitPerTokenPrecision),
		TotalUserTokens: total,
		Credits:         credits,
	}, nil
}
