package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"wallet-watch/agent/internal/models"
	"wallet-watch/agent/internal/providers"
	"wallet-watch/shared/types"
)

// AlertLookup reports which transactions already produced an alert.
type AlertLookup interface {
	ExistingTxHashes(ctx context.Context, owner string, chain types.Chain, wallet string, hashes []string) (map[string]struct{}, error)
}

// PriceSource prices one unit of a token in USD.
type PriceSource interface {
	PriceUSD(ctx context.Context, chain types.Chain, symbol, tokenAddress string) (decimal.Decimal, bool)
}

// Detection is what the detector decided for one entry.
type Detection struct {
	Candidates     []*models.Alert
	NextCheckpoint time.Time
}

// Detector turns provider events into alert candidates that are new for the
// entry's owner. The alert store's unique constraint remains the final word.
type Detector struct {
	alerts     AlertLookup
	prices     PriceSource
	classifier *Classifier
}

func NewDetector(alerts AlertLookup, prices PriceSource, classifier *Classifier) *Detector {
	return &Detector{alerts: alerts, prices: prices, classifier: classifier}
}

func (d *Detector) Detect(ctx context.Context, entry models.WatchEntry, provider string, events []providers.ActivityEvent) (Detection, error) {
	det := Detection{NextCheckpoint: entry.LastCheckedAt}

	seen := make(map[string]struct{}, len(events))
	var fresh []providers.ActivityEvent
	var hashes []string
	for _, ev := range events {
		if ev.Timestamp.IsZero() || ev.TxHash == "" {
			continue
		}
		if ev.Timestamp.After(det.NextCheckpoint) {
			det.NextCheckpoint = ev.Timestamp
		}
		// Inclusive: several transactions can share the checkpoint second.
		if ev.Timestamp.Before(entry.LastCheckedAt) {
			continue
		}
		hash := types.NormalizeTxHash(entry.Chain, ev.TxHash)
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}
		if !matchesTokenFilter(entry, ev) {
			continue
		}
		ev.TxHash = hash
		fresh = append(fresh, ev)
		hashes = append(hashes, hash)
	}
	if len(fresh) == 0 {
		return det, nil
	}

	existing, err := d.alerts.ExistingTxHashes(ctx, entry.OwnerID, entry.Chain, entry.Address, hashes)
	if err != nil {
		return det, fmt.Errorf("look up existing alerts: %w", err)
	}

	for _, ev := range fresh {
		if _, ok := existing[ev.TxHash]; ok {
			continue
		}
		det.Candidates = append(det.Candidates, d.buildAlert(ctx, entry, provider, ev))
	}
	return det, nil
}

func (d *Detector) buildAlert(ctx context.Context, entry models.WatchEntry, provider string, ev providers.ActivityEvent) *models.Alert {
	chain := entry.Chain
	from := types.CanonicalAddress(chain, ev.From)
	to := types.CanonicalAddress(chain, ev.To)
	dir := d.classifier.Direction(chain, entry.Address, from, to)

	symbol := ev.TokenSymbol
	if symbol == "" && ev.TokenAddress == "" {
		symbol = chain.NativeSymbol()
	}

	usd := ev.USDValue
	if !usd.Valid {
		switch {
		case ev.Amount.IsZero():
			usd = decimal.NewNullDecimal(decimal.Zero)
		case d.prices != nil:
			if price, ok := d.prices.PriceUSD(ctx, chain, symbol, ev.TokenAddress); ok {
				usd = decimal.NewNullDecimal(ev.Amount.Mul(price).Round(2))
			}
		}
	}

	id := entry.ID
	return &models.Alert{
		OwnerID:        entry.OwnerID,
		WatchEntryID:   &id,
		Chain:          chain,
		WalletAddress:  entry.Address,
		TxHash:         ev.TxHash,
		Classification: d.classifier.Classify(chain, dir, from, to, usd),
		Direction:      dir,
		FromAddress:    from,
		ToAddress:      to,
		TokenSymbol:    symbol,
		TokenAddress:   types.CanonicalAddress(chain, ev.TokenAddress),
		Amount:         ev.Amount,
		USDValue:       usd,
		Provider:       provider,
		BlockTime:      ev.Timestamp.UTC(),
	}
}

func matchesTokenFilter(entry models.WatchEntry, ev providers.ActivityEvent) bool {
	if entry.TokenFilter == "" {
		return true
	}
	if ev.TokenAddress != "" && types.SameAddress(entry.Chain, entry.TokenFilter, ev.TokenAddress) {
		return true
	}
	return ev.TokenSymbol != "" && strings.EqualFold(entry.TokenFilter, ev.TokenSymbol)
}
