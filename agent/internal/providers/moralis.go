package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"wallet-watch/shared/config"
	"wallet-watch/shared/logger"
	"wallet-watch/shared/types"
)

const MoralisName = "moralis"

var moralisChainIDs = map[types.Chain]string{
	types.Ethereum:  "0x1",
	types.BSC:       "0x38",
	types.Polygon:   "0x89",
	types.Avalanche: "0xa86a",
	types.Base:      "0x2105",
	types.Arbitrum:  "0xa4b1",
	types.Optimism:  "0xa",
}

type Moralis struct {
	apiKey   string
	baseURL  string
	pageSize int
	http     *httpClient
}

func NewMoralis(cfg config.ProviderConfig, appLogger *logger.Logger) *Moralis {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://deep-index.moralis.io/api/v2.2"
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Moralis{
		apiKey:   cfg.APIKey,
		baseURL:  base,
		pageSize: pageSize,
		http:     newHTTPClient(MoralisName, cfg, appLogger),
	}
}

func (m *Moralis) Name() string { return MoralisName }

func (m *Moralis) Supports(chain types.Chain) bool {
	_, ok := moralisChainIDs[chain]
	return ok
}

type moralisNativeTx struct {
	Hash           string `json:"hash"`
	FromAddress    string `json:"from_address"`
	ToAddress      string `json:"to_address"`
	Value          string `json:"value"`
	BlockTimestamp string `json:"block_timestamp"`
	ReceiptStatus  string `json:"receipt_status"`
}

type moralisTokenTransfer struct {
	TransactionHash string `json:"transaction_hash"`
	Address         string `json:"address"`
	FromAddress     string `json:"from_address"`
	ToAddress       string `json:"to_address"`
	Value           string `json:"value"`
	TokenSymbol     string `json:"token_symbol"`
	TokenDecimals   string `json:"token_decimals"`
	BlockTimestamp  string `json:"block_timestamp"`
}

func (m *Moralis) FetchActivity(ctx context.Context, address string, chain types.Chain, since time.Time) ([]ActivityEvent, error) {
	chainID, ok := moralisChainIDs[chain]
	if !ok {
		return nil, newError(MoralisName, KindUnsupported, 0, fmt.Errorf("chain %s", chain))
	}

	q := url.Values{}
	q.Set("chain", chainID)
	q.Set("order", "DESC")
	q.Set("limit", strconv.Itoa(m.pageSize))
	if !since.IsZero() {
		q.Set("from_date", since.UTC().Format(time.RFC3339))
	}
	header := http.Header{"X-API-Key": []string{m.apiKey}}

	var (
		mu     sync.Mutex
		events []ActivityEvent
	)
	add := func(evs []ActivityEvent) {
		mu.Lock()
		events = append(events, evs...)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var resp struct {
			Result []moralisNativeTx `json:"result"`
		}
		if err := m.http.getJSON(gctx, fmt.Sprintf("%s/%s?%s", m.baseURL, address, q.Encode()), header, &resp); err != nil {
			return err
		}
		out := make([]ActivityEvent, 0, len(resp.Result))
		for _, tx := range resp.Result {
			if tx.ReceiptStatus == "0" {
				continue
			}
			ts, err := time.Parse(time.RFC3339Nano, tx.BlockTimestamp)
			if err != nil {
				continue
			}
			amt, _ := scaleInt(tx.Value, 18)
			out = append(out, ActivityEvent{
				TxHash:      tx.Hash,
				From:        tx.FromAddress,
				To:          tx.ToAddress,
				Amount:      amt,
				TokenSymbol: chain.NativeSymbol(),
				Timestamp:   ts.UTC(),
			})
		}
		add(out)
		return nil
	})
	g.Go(func() error {
		var resp struct {
			Result []moralisTokenTransfer `json:"result"`
		}
		if err := m.http.getJSON(gctx, fmt.Sprintf("%s/%s/erc20/transfers?%s", m.baseURL, address, q.Encode()), header, &resp); err != nil {
			return err
		}
		out := make([]ActivityEvent, 0, len(resp.Result))
		for _, tr := range resp.Result {
			ts, err := time.Parse(time.RFC3339Nano, tr.BlockTimestamp)
			if err != nil {
				continue
			}
			decimals, err := strconv.Atoi(tr.TokenDecimals)
			if err != nil {
				decimals = 18
			}
			amt, _ := scaleInt(tr.Value, int32(decimals))
			out = append(out, ActivityEvent{
				TxHash:       tr.TransactionHash,
				From:         tr.FromAddress,
				To:           tr.ToAddress,
				Amount:       amt,
				TokenSymbol:  tr.TokenSymbol,
				TokenAddress: strings.ToLower(tr.Address),
				Timestamp:    ts.UTC(),
			})
		}
		add(out)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, Classify(MoralisName, err)
	}
	return mergeByHash(chain, events, since), nil
}
