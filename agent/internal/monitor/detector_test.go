package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-watch/agent/internal/models"
	"wallet-watch/agent/internal/providers"
	"wallet-watch/shared/types"
)

const (
	watched  = "0x1111111111111111111111111111111111111111"
	peer     = "0x2222222222222222222222222222222222222222"
	exchange = "0x28c6c06298d514db089934071355e5743bf21d60"
)

var checkpoint = time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

func testEntry() models.WatchEntry {
	return models.WatchEntry{ID: 7, OwnerID: "u1", Chain: types.Ethereum, Address: watched, LastCheckedAt: checkpoint}
}

func testDetector(store AlertLookup, prices PriceSource) *Detector {
	return NewDetector(store, prices, NewClassifier(1_000_000, map[string][]string{"ethereum": {exchange}}))
}

func transfer(hash string, ts time.Time, from, to, amount, symbol string) providers.ActivityEvent {
	return providers.ActivityEvent{
		TxHash:      hash,
		From:        from,
		To:          to,
		Amount:      decimal.RequireFromString(amount),
		TokenSymbol: symbol,
		Timestamp:   ts,
	}
}

func TestDetectCheckpointIsInclusive(t *testing.T) {
	d := testDetector(newMemStore(), nil)
	events := []providers.ActivityEvent{
		transfer("0xold", checkpoint.Add(-time.Second), peer, watched, "1", "ETH"),
		transfer("0xsame", checkpoint, peer, watched, "1", "ETH"),
		transfer("0xnew", checkpoint.Add(time.Minute), peer, watched, "1", "ETH"),
	}
	det, err := d.Detect(context.Background(), testEntry(), "alchemy", events)
	require.NoError(t, err)

	require.Len(t, det.Candidates, 2)
	assert.Equal(t, "0xsame", det.Candidates[0].TxHash)
	assert.Equal(t, "0xnew", det.Candidates[1].TxHash)
	assert.Equal(t, checkpoint.Add(time.Minute), det.NextCheckpoint)
}

func TestDetectDedupsBatchAndStore(t *testing.T) {
	store := newMemStore()
	_, err := store.CreateAlertIfAbsent(context.Background(), &models.Alert{OwnerID: "u1", Chain: types.Ethereum, WalletAddress: watched, TxHash: "0xseen"})
	require.NoError(t, err)

	d := testDetector(store, nil)
	ts := checkpoint.Add(time.Minute)
	events := []providers.ActivityEvent{
		transfer("0xAB", ts, peer, watched, "1", "ETH"),
		transfer("0xab", ts, peer, watched, "1", "ETH"),
		transfer("0xseen", ts, peer, watched, "1", "ETH"),
	}
	det, err := d.Detect(context.Background(), testEntry(), "alchemy", events)
	require.NoError(t, err)
	require.Len(t, det.Candidates, 1)
	assert.Equal(t, "0xab", det.Candidates[0].TxHash, "EVM hashes are lowercased")
}

func TestDetectNothingNewKeepsCheckpoint(t *testing.T) {
	d := testDetector(newMemStore(), nil)
	det, err := d.Detect(context.Background(), testEntry(), "alchemy", nil)
	require.NoError(t, err)
	assert.Empty(t, det.Candidates)
	assert.Equal(t, checkpoint, det.NextCheckpoint)

	// old events never move the checkpoint backwards
	det, err = d.Detect(context.Background(), testEntry(), "alchemy", []providers.ActivityEvent{
		transfer("0xold", checkpoint.Add(-time.Hour), peer, watched, "1", "ETH"),
	})
	require.NoError(t, err)
	assert.Empty(t, det.Candidates)
	assert.Equal(t, checkpoint, det.NextCheckpoint)
}

func TestDetectTokenFilter(t *testing.T) {
	entry := testEntry()
	entry.TokenFilter = "0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48"
	ts := checkpoint.Add(time.Minute)

	usdc := transfer("0x1", ts, peer, watched, "10", "USDC")
	usdc.TokenAddress = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	eth := transfer("0x2", ts.Add(time.Second), peer, watched, "1", "ETH")

	d := testDetector(newMemStore(), nil)
	det, err := d.Detect(context.Background(), entry, "moralis", []providers.ActivityEvent{usdc, eth})
	require.NoError(t, err)
	require.Len(t, det.Candidates, 1)
	assert.Equal(t, "0x1", det.Candidates[0].TxHash)
	assert.Equal(t, ts.Add(time.Second), det.NextCheckpoint, "filtered events still advance the checkpoint")

	entry.TokenFilter = "eth"
	det, err = d.Detect(context.Background(), entry, "moralis", []providers.ActivityEvent{usdc, eth})
	require.NoError(t, err)
	require.Len(t, det.Candidates, 1)
	assert.Equal(t, "0x2", det.Candidates[0].TxHash)
}

func TestDetectClassifiesAndPrices(t *testing.T) {
	ts := checkpoint.Add(time.Minute)
	prices := fixedPrices{"ETH": "3000"}
	d := testDetector(newMemStore(), prices)

	events := []providers.ActivityEvent{
		transfer("0xwhale", ts, peer, watched, "400", "ETH"),      // $1.2M
		transfer("0xcex", ts, watched, exchange, "2", "ETH"),      // sent to an exchange
		transfer("0xsmall", ts, peer, watched, "0.5", "ETH"),      // plain transfer
		transfer("0xunpriced", ts, peer, watched, "5", "NOPRICE"), // no price
	}
	det, err := d.Detect(context.Background(), testEntry(), "alchemy", events)
	require.NoError(t, err)
	require.Len(t, det.Candidates, 4)

	byHash := map[string]*models.Alert{}
	for _, a := range det.Candidates {
		byHash[a.TxHash] = a
	}

	assert.Equal(t, models.ClassWhale, byHash["0xwhale"].Classification)
	assert.Equal(t, "1200000", byHash["0xwhale"].USDValue.Decimal.String())
	assert.Equal(t, models.DirectionReceived, byHash["0xwhale"].Direction)

	assert.Equal(t, models.ClassExchangeFlow, byHash["0xcex"].Classification)
	assert.Equal(t, models.DirectionSent, byHash["0xcex"].Direction)

	assert.Equal(t, models.ClassTransfer, byHash["0xsmall"].Classification)
	assert.Equal(t, "1500", byHash["0xsmall"].USDValue.Decimal.String())

	assert.False(t, byHash["0xunpriced"].USDValue.Valid)
	assert.Equal(t, models.ClassTransfer, byHash["0xunpriced"].Classification)

	a := byHash["0xsmall"]
	assert.Equal(t, "u1", a.OwnerID)
	require.NotNil(t, a.WatchEntryID)
	assert.EqualValues(t, 7, *a.WatchEntryID)
	assert.Equal(t, "alchemy", a.Provider)
	assert.Equal(t, watched, a.WalletAddress)
}

type failingLookup struct{}

func (failingLookup) ExistingTxHashes(context.Context, string, types.Chain, string, []string) (map[string]struct{}, error) {
	return nil, errors.New("db down")
}

func TestDetectLookupFailure(t *testing.T) {
	d := testDetector(failingLookup{}, nil)
	_, err := d.Detect(context.Background(), testEntry(), "alchemy", []providers.ActivityEvent{
		transfer("0x1", checkpoint.Add(time.Minute), peer, watched, "1", "ETH"),
	})
	assert.Error(t, err)
}

func TestClassifierDirection(t *testing.T) {
	c := NewClassifier(1_000_000, nil)
	assert.Equal(t, models.DirectionSelf, c.Direction(types.Ethereum, watched, watched, watched))
	assert.Equal(t, models.DirectionSent, c.Direction(types.Ethereum, watched, "0X1111111111111111111111111111111111111111", peer))
	assert.Equal(t, models.DirectionContract, c.Direction(types.Ethereum, watched, peer, ""))

	// Solana keys are case-sensitive
	assert.Equal(t, models.DirectionContract, c.Direction(types.Solana, "AbC", "abc", ""))
}

func TestClassifierWhaleThresholdBoundary(t *testing.T) {
	c := NewClassifier(1_000_000, nil)
	at := decimal.NewNullDecimal(decimal.NewFromInt(1_000_000))
	below := decimal.NewNullDecimal(decimal.RequireFromString("999999.99"))
	assert.Equal(t, models.ClassWhale, c.Classify(types.Ethereum, models.DirectionReceived, peer, watched, at))
	assert.Equal(t, models.ClassTransfer, c.Classify(types.Ethereum, models.DirectionReceived, peer, watched, below))
}
