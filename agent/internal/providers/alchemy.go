package providers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"wallet-watch/shared/config"
	"wallet-watch/shared/logger"
	"wallet-watch/shared/types"
)

const AlchemyName = "alchemy"

var alchemyNetworks = map[types.Chain]string{
	types.Ethereum:  "eth-mainnet",
	types.Base:      "base-mainnet",
	types.BSC:       "bnb-mainnet",
	types.Polygon:   "polygon-mainnet",
	types.Arbitrum:  "arb-mainnet",
	types.Optimism:  "opt-mainnet",
	types.Avalanche: "avax-mainnet",
}

// Alchemy reads EVM activity through alchemy_getAssetTransfers.
type Alchemy struct {
	apiKey   string
	baseURL  string
	urls     map[string]string
	pageSize int
	http     *httpClient
}

func NewAlchemy(cfg config.ProviderConfig, appLogger *logger.Logger) *Alchemy {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Alchemy{
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		urls:     cfg.URLs,
		pageSize: pageSize,
		http:     newHTTPClient(AlchemyName, cfg, appLogger),
	}
}

func (a *Alchemy) Name() string { return AlchemyName }

func (a *Alchemy) Supports(chain types.Chain) bool {
	_, ok := alchemyNetworks[chain]
	return ok
}

func (a *Alchemy) endpoint(chain types.Chain) string {
	if u := a.urls[string(chain)]; u != "" {
		return u
	}
	if a.baseURL != "" {
		return a.baseURL
	}
	return fmt.Sprintf("https://%s.g.alchemy.com/v2/%s", alchemyNetworks[chain], a.apiKey)
}

type alchemyRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type alchemyResponse struct {
	Result *struct {
		Transfers []alchemyTransfer `json:"transfers"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

type alchemyTransfer struct {
	Hash        string   `json:"hash"`
	From        string   `json:"from"`
	To          *string  `json:"to"`
	Value       *float64 `json:"value"`
	Asset       *string  `json:"asset"`
	Category    string   `json:"category"`
	RawContract struct {
		Address *string `json:"address"`
		Value   *string `json:"value"`
		Decimal *string `json:"decimal"`
	} `json:"rawContract"`
	Metadata struct {
		BlockTimestamp string `json:"blockTimestamp"`
	} `json:"metadata"`
}

func (a *Alchemy) FetchActivity(ctx context.Context, address string, chain types.Chain, since time.Time) ([]ActivityEvent, error) {
	if !a.Supports(chain) {
		return nil, newError(AlchemyName, KindUnsupported, 0, fmt.Errorf("chain %s", chain))
	}

	var (
		mu     sync.Mutex
		events []ActivityEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, field := range []string{"fromAddress", "toAddress"} {
		field := field
		g.Go(func() error {
			got, err := a.transfers(gctx, chain, field, address)
			if err != nil {
				return err
			}
			mu.Lock()
			events = append(events, got...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Classify(AlchemyName, err)
	}
	return mergeByHash(chain, events, since), nil
}

func (a *Alchemy) transfers(ctx context.Context, chain types.Chain, field, address string) ([]ActivityEvent, error) {
	categories := []string{"external", "erc20"}
	// Internal transfers are only indexed on Ethereum and Polygon.
	if chain == types.Ethereum || chain == types.Polygon {
		categories = append(categories, "internal")
	}
	req := alchemyRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "alchemy_getAssetTransfers",
		Params: []interface{}{map[string]interface{}{
			"fromBlock":        "0x0",
			"toBlock":          "latest",
			field:              address,
			"category":         categories,
			"withMetadata":     true,
			"excludeZeroValue": false,
			"order":            "desc",
			"maxCount":         "0x" + strconv.FormatInt(int64(a.pageSize), 16),
		}},
	}

	var resp alchemyResponse
	if err := a.http.postJSON(ctx, a.endpoint(chain), req, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, rpcFailure(AlchemyName, resp.Error)
	}
	if resp.Result == nil {
		return nil, newError(AlchemyName, KindMalformed, 0, fmt.Errorf("response has neither result nor error"))
	}

	out := make([]ActivityEvent, 0, len(resp.Result.Transfers))
	for _, t := range resp.Result.Transfers {
		ts, err := time.Parse(time.RFC3339, t.Metadata.BlockTimestamp)
		if err != nil {
			continue
		}
		ev := ActivityEvent{
			TxHash:    t.Hash,
			From:      t.From,
			Timestamp: ts.UTC(),
		}
		if t.To != nil {
			ev.To = *t.To
		}
		ev.Amount = alchemyAmount(t)
		if t.Category == "external" || t.Category == "internal" {
			ev.TokenSymbol = chain.NativeSymbol()
		} else {
			if t.Asset != nil {
				ev.TokenSymbol = *t.Asset
			}
			if t.RawContract.Address != nil {
				ev.TokenAddress = strings.ToLower(*t.RawContract.Address)
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

// alchemyAmount prefers the exact raw value over the float the API rounds.
func alchemyAmount(t alchemyTransfer) decimal.Decimal {
	if t.RawContract.Value != nil && t.RawContract.Decimal != nil {
		if dec, err := strconv.ParseInt(strings.TrimPrefix(*t.RawContract.Decimal, "0x"), 16, 32); err == nil {
			if amt, ok := scaleInt(*t.RawContract.Value, int32(dec)); ok {
				return amt
			}
		}
	}
	if t.Value != nil {
		return decimal.NewFromFloat(*t.Value)
	}
	return decimal.Zero
}

func rpcFailure(provider string, e *rpcError) *Error {
	msg := strings.ToLower(e.Message)
	if e.Code == 429 || strings.Contains(msg, "rate limit") || strings.Contains(msg, "exceeded") {
		return newError(provider, KindRateLimited, 429, fmt.Errorf("rpc error %d: %s", e.Code, e.Message))
	}
	return newError(provider, KindUnavailable, 0, fmt.Errorf("rpc error %d: %s", e.Code, e.Message))
}
