package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"wallet-watch/agent/internal/metrics"
	"wallet-watch/shared/logger"
	"wallet-watch/shared/types"
)

var stablecoins = map[string]bool{
	"USDC": true, "USDT": true, "DAI": true, "BUSD": true, "USDE": true,
	"FDUSD": true, "PYUSD": true, "TUSD": true, "USDS": true, "USDC.E": true,
}

var coinGeckoIDs = map[string]string{
	"ETH":  "ethereum",
	"WETH": "ethereum",
	"BNB":  "binancecoin",
	"WBNB": "binancecoin",
	"POL":  "polygon-ecosystem-token",
	"AVAX": "avalanche-2",
	"SOL":  "solana",
	"WBTC": "wrapped-bitcoin",
	"BTC":  "bitcoin",
}

var coinGeckoPlatforms = map[types.Chain]string{
	types.Ethereum:  "ethereum",
	types.Base:      "base",
	types.BSC:       "binance-smart-chain",
	types.Polygon:   "polygon-pos",
	types.Arbitrum:  "arbitrum-one",
	types.Optimism:  "optimistic-ethereum",
	types.Avalanche: "avalanche",
	types.Solana:    "solana",
}

// Wrapped tickers price like their underlying asset on Binance.
var binanceAliases = map[string]string{"WETH": "ETH", "WBNB": "BNB", "WBTC": "BTC"}

type Options struct {
	CoinGeckoURL string
	BinanceURL   string
	CacheTTL     time.Duration
	Timeout      time.Duration
}

// Oracle resolves USD prices: stablecoins at par, then cache, then CoinGecko,
// then Binance. Lookups never fail hard; an unknown price is reported as ok=false.
type Oracle struct {
	client       *http.Client
	coingeckoURL string
	binanceURL   string
	cache        Cache
	ttl          time.Duration
	appLogger    *logger.Logger
}

func NewOracle(opts Options, cache Cache, appLogger *logger.Logger) *Oracle {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if appLogger == nil {
		appLogger = logger.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Oracle{
		client:       &http.Client{Timeout: timeout},
		coingeckoURL: strings.TrimRight(opts.CoinGeckoURL, "/"),
		binanceURL:   strings.TrimRight(opts.BinanceURL, "/"),
		cache:        cache,
		ttl:          ttl,
		appLogger:    appLogger,
	}
}

func (o *Oracle) PriceUSD(ctx context.Context, chain types.Chain, symbol, tokenAddress string) (decimal.Decimal, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if stablecoins[symbol] {
		metrics.PriceLookupsTotal.WithLabelValues("static").Inc()
		return decimal.NewFromInt(1), true
	}

	key := cacheKey(chain, symbol, tokenAddress)
	if key == "" {
		metrics.PriceLookupsTotal.WithLabelValues("miss").Inc()
		return decimal.Zero, false
	}
	if p, ok := o.cache.Get(ctx, key); ok {
		metrics.PriceLookupsTotal.WithLabelValues("cache").Inc()
		return p, true
	}

	p, err := o.fromCoinGecko(ctx, chain, symbol, tokenAddress)
	if err == nil {
		metrics.PriceLookupsTotal.WithLabelValues("coingecko").Inc()
		o.cache.Set(ctx, key, p, o.ttl)
		return p, true
	}
	o.appLogger.Debug("CoinGecko price lookup failed, trying Binance", zap.String("symbol", symbol), zap.String("token", tokenAddress), zap.Error(err))

	p, err = o.fromBinance(ctx, symbol)
	if err == nil {
		metrics.PriceLookupsTotal.WithLabelValues("binance").Inc()
		o.cache.Set(ctx, key, p, o.ttl)
		return p, true
	}
	o.appLogger.Debug("No USD price available", zap.String("symbol", symbol), zap.String("token", tokenAddress), zap.Error(err))
	metrics.PriceLookupsTotal.WithLabelValues("miss").Inc()
	return decimal.Zero, false
}

func cacheKey(chain types.Chain, symbol, tokenAddress string) string {
	if _, ok := coinGeckoIDs[symbol]; ok && tokenAddress == "" {
		return "symbol:" + symbol
	}
	if tokenAddress != "" {
		return string(chain) + ":" + types.CanonicalAddress(chain, tokenAddress)
	}
	if symbol != "" {
		return "symbol:" + symbol
	}
	return ""
}

func (o *Oracle) fromCoinGecko(ctx context.Context, chain types.Chain, symbol, tokenAddress string) (decimal.Decimal, error) {
	if o.coingeckoURL == "" {
		return decimal.Zero, fmt.Errorf("coingecko disabled")
	}
	id, known := coinGeckoIDs[symbol]
	if platform, ok := coinGeckoPlatforms[chain]; ok && tokenAddress != "" {
		price, err := o.tokenPrice(ctx, platform, types.CanonicalAddress(chain, tokenAddress))
		if err == nil || !known {
			return price, err
		}
	}
	if !known {
		return decimal.Zero, fmt.Errorf("no coingecko mapping for %q on %s", symbol, chain)
	}
	return o.fromCoinGeckoID(ctx, id)
}

func (o *Oracle) tokenPrice(ctx context.Context, platform, addr string) (decimal.Decimal, error) {
	var data map[string]map[string]float64
	q := url.Values{"contract_addresses": {addr}, "vs_currencies": {"usd"}}
	if err := o.getJSON(ctx, o.coingeckoURL+"/simple/token_price/"+platform+"?"+q.Encode(), &data); err != nil {
		return decimal.Zero, err
	}
	for k, v := range data {
		if strings.EqualFold(k, addr) {
			if price, ok := v["usd"]; ok && price > 0 {
				return decimal.NewFromFloat(price), nil
			}
		}
	}
	return decimal.Zero, fmt.Errorf("token %s not priced by coingecko", addr)
}

func (o *Oracle) fromCoinGeckoID(ctx context.Context, id string) (decimal.Decimal, error) {
	var data map[string]map[string]float64
	q := url.Values{"ids": {id}, "vs_currencies": {"usd"}}
	if err := o.getJSON(ctx, o.coingeckoURL+"/simple/price?"+q.Encode(), &data); err != nil {
		return decimal.Zero, err
	}
	if price, ok := data[id]["usd"]; ok && price > 0 {
		return decimal.NewFromFloat(price), nil
	}
	return decimal.Zero, fmt.Errorf("price for %s not in coingecko response", id)
}

func (o *Oracle) fromBinance(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if o.binanceURL == "" || symbol == "" {
		return decimal.Zero, fmt.Errorf("binance lookup not possible")
	}
	if alias, ok := binanceAliases[symbol]; ok {
		symbol = alias
	}
	var result struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := o.getJSON(ctx, o.binanceURL+"/ticker/price?symbol="+url.QueryEscape(symbol+"USDT"), &result); err != nil {
		return decimal.Zero, err
	}
	price, err := decimal.NewFromString(result.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse binance price %q: %w", result.Price, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("binance returned non-positive price for %s", symbol)
	}
	return price, nil
}

func (o *Oracle) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("price api returned %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read price response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse price response: %w", err)
	}
	return nil
}
