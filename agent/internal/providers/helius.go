package providers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"wallet-watch/agent/internal/events"
	"wallet-watch/shared/config"
	"wallet-watch/shared/logger"
	"wallet-watch/shared/types"
)

const HeliusName = "helius"

// Symbols of the mints most wallets move; anything else is shown by mint.
var knownSolanaMints = map[string]string{
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": "USDC",
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": "USDT",
	"mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So":  "MSOL",
	"J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn": "JITOSOL",
}

// Helius reads Solana activity through the enhanced transactions API.
type Helius struct {
	apiKey   string
	baseURL  string
	pageSize int
	http     *httpClient
}

func NewHelius(cfg config.ProviderConfig, appLogger *logger.Logger) *Helius {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.helius.xyz/v0"
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	return &Helius{
		apiKey:   cfg.APIKey,
		baseURL:  base,
		pageSize: pageSize,
		http:     newHTTPClient(HeliusName, cfg, appLogger),
	}
}

func (h *Helius) Name() string { return HeliusName }

func (h *Helius) Supports(chain types.Chain) bool { return chain == types.Solana }

func (h *Helius) FetchActivity(ctx context.Context, address string, chain types.Chain, since time.Time) ([]ActivityEvent, error) {
	if chain != types.Solana {
		return nil, newError(HeliusName, KindUnsupported, 0, fmt.Errorf("chain %s", chain))
	}

	q := url.Values{}
	q.Set("api-key", h.apiKey)
	q.Set("limit", strconv.Itoa(h.pageSize))

	var txs []events.EnhancedTransaction
	endpoint := fmt.Sprintf("%s/addresses/%s/transactions?%s", h.baseURL, address, q.Encode())
	if err := h.http.getJSON(ctx, endpoint, nil, &txs); err != nil {
		return nil, err
	}

	out := make([]ActivityEvent, 0, len(txs))
	for _, tx := range txs {
		tr, ok := events.ExtractTransfer(tx, address)
		if !ok {
			continue
		}
		out = append(out, solanaEvent(tr))
	}
	return mergeByHash(chain, out, since), nil
}

func solanaEvent(tr events.Transfer) ActivityEvent {
	ev := ActivityEvent{
		TxHash:       tr.Signature,
		From:         tr.From,
		To:           tr.To,
		Amount:       tr.Amount,
		TokenAddress: tr.Mint,
		Timestamp:    tr.Timestamp,
	}
	switch {
	case tr.Mint == "":
		ev.TokenSymbol = types.Solana.NativeSymbol()
	case knownSolanaMints[tr.Mint] != "":
		ev.TokenSymbol = knownSolanaMints[tr.Mint]
	}
	return ev
}
