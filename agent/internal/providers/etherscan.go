package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"wallet-watch/shared/config"
	"wallet-watch/shared/logger"
	"wallet-watch/shared/types"
)

const EtherscanName = "etherscan"

var etherscanHosts = map[types.Chain]string{
	types.Ethereum:  "https://api.etherscan.io/api",
	types.Base:      "https://api.basescan.org/api",
	types.BSC:       "https://api.bscscan.com/api",
	types.Polygon:   "https://api.polygonscan.com/api",
	types.Arbitrum:  "https://api.arbiscan.io/api",
	types.Optimism:  "https://api-optimistic.etherscan.io/api",
	types.Avalanche: "https://api.snowtrace.io/api",
}

// Etherscan covers the Etherscan family of explorers. Its free tier allows
// few calls per second, so the two actions run sequentially.
type Etherscan struct {
	apiKey   string
	urls     map[string]string
	pageSize int
	http     *httpClient
}

func NewEtherscan(cfg config.ProviderConfig, appLogger *logger.Logger) *Etherscan {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Etherscan{
		apiKey:   cfg.APIKey,
		urls:     cfg.URLs,
		pageSize: pageSize,
		http:     newHTTPClient(EtherscanName, cfg, appLogger),
	}
}

func (e *Etherscan) Name() string { return EtherscanName }

func (e *Etherscan) Supports(chain types.Chain) bool {
	_, ok := etherscanHosts[chain]
	return ok
}

func (e *Etherscan) endpoint(chain types.Chain) string {
	if u := e.urls[string(chain)]; u != "" {
		return u
	}
	return etherscanHosts[chain]
}

type etherscanEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type etherscanTx struct {
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	TimeStamp       string `json:"timeStamp"`
	IsError         string `json:"isError"`
	ContractAddress string `json:"contractAddress"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
}

func (e *Etherscan) FetchActivity(ctx context.Context, address string, chain types.Chain, since time.Time) ([]ActivityEvent, error) {
	if !e.Supports(chain) {
		return nil, newError(EtherscanName, KindUnsupported, 0, fmt.Errorf("chain %s", chain))
	}

	var events []ActivityEvent
	for _, action := range []string{"txlist", "tokentx"} {
		txs, err := e.list(ctx, chain, action, address)
		if err != nil {
			return nil, err
		}
		for _, tx := range txs {
			if tx.IsError == "1" {
				continue
			}
			secs, err := strconv.ParseInt(tx.TimeStamp, 10, 64)
			if err != nil {
				continue
			}
			ev := ActivityEvent{
				TxHash:    tx.Hash,
				From:      tx.From,
				To:        tx.To,
				Timestamp: time.Unix(secs, 0).UTC(),
			}
			if action == "tokentx" {
				decimals, err := strconv.Atoi(tx.TokenDecimal)
				if err != nil {
					decimals = 18
				}
				ev.Amount, _ = scaleInt(tx.Value, int32(decimals))
				ev.TokenSymbol = tx.TokenSymbol
				ev.TokenAddress = strings.ToLower(tx.ContractAddress)
			} else {
				ev.Amount, _ = scaleInt(tx.Value, 18)
				ev.TokenSymbol = chain.NativeSymbol()
			}
			events = append(events, ev)
		}
	}
	return mergeByHash(chain, events, since), nil
}

func (e *Etherscan) list(ctx context.Context, chain types.Chain, action, address string) ([]etherscanTx, error) {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", action)
	q.Set("address", address)
	q.Set("page", "1")
	q.Set("offset", strconv.Itoa(e.pageSize))
	q.Set("sort", "desc")
	q.Set("apikey", e.apiKey)

	var env etherscanEnvelope
	if err := e.http.getJSON(ctx, e.endpoint(chain)+"?"+q.Encode(), nil, &env); err != nil {
		return nil, err
	}

	if env.Status != "1" {
		if strings.Contains(env.Message, "No transactions found") {
			return nil, nil
		}
		var detail string
		_ = json.Unmarshal(env.Result, &detail)
		lower := strings.ToLower(detail + " " + env.Message)
		if strings.Contains(lower, "rate limit") {
			return nil, newError(EtherscanName, KindRateLimited, 0, fmt.Errorf("%s: %s", env.Message, detail))
		}
		return nil, newError(EtherscanName, KindUnavailable, 0, fmt.Errorf("%s %s: %s", action, env.Message, detail))
	}

	var txs []etherscanTx
	if err := json.Unmarshal(env.Result, &txs); err != nil {
		return nil, newError(EtherscanName, KindMalformed, 0, fmt.Errorf("decode %s result: %w", action, err))
	}
	return txs, nil
}
