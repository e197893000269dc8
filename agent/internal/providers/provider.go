package providers

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"wallet-watch/shared/types"
)

// ActivityEvent is one transaction touching a watched address, as reported by
// an upstream provider. Providers emit at most one event per transaction.
type ActivityEvent struct {
	TxHash       string
	From         string
	To           string
	Amount       decimal.Decimal
	TokenSymbol  string
	TokenAddress string
	USDValue     decimal.NullDecimal
	Timestamp    time.Time
}

// Provider is a read-only view of one upstream chain-data source.
//
// An empty slice with a nil error is a valid answer and means "nothing new".
// Failures are returned as *Error so callers can tell a timeout from a 429.
type Provider interface {
	Name() string
	Supports(chain types.Chain) bool
	FetchActivity(ctx context.Context, address string, chain types.Chain, since time.Time) ([]ActivityEvent, error)
}

// mergeByHash collapses multiple transfers of the same transaction into one
// event, preferring a leg with a non-zero amount, and drops anything older
// than since. Hashes are compared with the chain's casing rules. Output is
// newest first.
func mergeByHash(chain types.Chain, events []ActivityEvent, since time.Time) []ActivityEvent {
	byHash := make(map[string]int, len(events))
	out := make([]ActivityEvent, 0, len(events))
	for _, ev := range events {
		if ev.TxHash == "" || ev.Timestamp.IsZero() {
			continue
		}
		if !since.IsZero() && ev.Timestamp.Before(since) {
			continue
		}
		key := types.NormalizeTxHash(chain, ev.TxHash)
		if i, ok := byHash[key]; ok {
			if out[i].Amount.IsZero() && !ev.Amount.IsZero() {
				out[i] = ev
			}
			continue
		}
		byHash[key] = len(out)
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// scaleInt converts a base-unit integer string (decimal or 0x hex) into a
// decimal shifted by the token's decimals.
func scaleInt(raw string, decimals int32) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, false
	}
	v := new(big.Int)
	var ok bool
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		if len(raw) == 2 {
			return decimal.Zero, true
		}
		_, ok = v.SetString(raw[2:], 16)
	} else {
		_, ok = v.SetString(raw, 10)
	}
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromBigInt(v, -decimals), true
}
