package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-watch/shared/config"
	"wallet-watch/shared/types"
)

const wallet = "0x1111111111111111111111111111111111111111"

func noSleep(h *httpClient) {
	h.sleep = func(ctx context.Context, d time.Duration) error { return nil }
}

func TestAlchemyMergesBothDirections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req alchemyRequest
		assert.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "alchemy_getAssetTransfers", req.Method)
		params := req.Params[0].(map[string]interface{})

		if _, ok := params["fromAddress"]; ok {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"transfers":[
				{"hash":"0xaaa","from":"` + wallet + `","to":"0x2222222222222222222222222222222222222222","value":1.5,"asset":"ETH","category":"external",
				 "rawContract":{"address":null,"value":"0x14d1120d7b160000","decimal":"0x12"},"metadata":{"blockTimestamp":"2026-01-02T10:00:00.000Z"}},
				{"hash":"0xold","from":"` + wallet + `","to":"0x2222222222222222222222222222222222222222","value":1,"asset":"ETH","category":"external",
				 "rawContract":{"address":null,"value":"0xde0b6b3a7640000","decimal":"0x12"},"metadata":{"blockTimestamp":"2025-12-01T10:00:00.000Z"}}
			]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"transfers":[
			{"hash":"0xbbb","from":"0x3333333333333333333333333333333333333333","to":"` + wallet + `","value":2500,"asset":"USDC","category":"erc20",
			 "rawContract":{"address":"0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48","value":"0x9502f900","decimal":"0x6"},"metadata":{"blockTimestamp":"2026-01-02T11:00:00.000Z"}}
		]}}`))
	}))
	defer srv.Close()

	a := NewAlchemy(config.ProviderConfig{URLs: map[string]string{"ethereum": srv.URL}}, nil)
	noSleep(a.http)

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	evs, err := a.FetchActivity(context.Background(), wallet, types.Ethereum, since)
	require.NoError(t, err)
	require.Len(t, evs, 2, "the pre-checkpoint transfer is dropped")

	assert.Equal(t, "0xbbb", evs[0].TxHash, "newest first")
	assert.True(t, evs[0].Amount.Equal(decimal.NewFromInt(2500)))
	assert.Equal(t, "USDC", evs[0].TokenSymbol)
	assert.Equal(t, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", evs[0].TokenAddress)

	assert.Equal(t, "0xaaa", evs[1].TxHash)
	assert.True(t, evs[1].Amount.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, "ETH", evs[1].TokenSymbol)
}

func TestAlchemyRPCErrorIsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":429,"message":"Your app has exceeded its compute units per second capacity"}}`))
	}))
	defer srv.Close()

	a := NewAlchemy(config.ProviderConfig{BaseURL: srv.URL}, nil)
	_, err := a.FetchActivity(context.Background(), wallet, types.Base, time.Time{})
	assert.Equal(t, KindRateLimited, kindOf(err))

	_, err = a.FetchActivity(context.Background(), "So1", types.Solana, time.Time{})
	assert.Equal(t, KindUnsupported, kindOf(err))
}

func TestMoralisNativeAndTokenTransfers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		assert.Equal(t, "0x38", r.URL.Query().Get("chain"))
		assert.Equal(t, "2026-01-01T00:00:00Z", r.URL.Query().Get("from_date"))

		if strings.HasSuffix(r.URL.Path, "/erc20/transfers") {
			_, _ = w.Write([]byte(`{"result":[{"transaction_hash":"0xt1","address":"0xToken","from_address":"0x9","to_address":"` + wallet + `",
				"value":"5000000000000000000000","token_symbol":"CAKE","token_decimals":"18","block_timestamp":"2026-01-03T00:00:00.000Z"}]}`))
			return
		}
		assert.Equal(t, "/"+wallet, r.URL.Path)
		_, _ = w.Write([]byte(`{"result":[
			{"hash":"0xt1","from_address":"` + wallet + `","to_address":"0xrouter","value":"0","block_timestamp":"2026-01-03T00:00:00.000Z","receipt_status":"1"},
			{"hash":"0xn1","from_address":"` + wallet + `","to_address":"0x9","value":"2000000000000000000","block_timestamp":"2026-01-02T00:00:00.000Z","receipt_status":"1"},
			{"hash":"0xfailed","from_address":"` + wallet + `","to_address":"0x9","value":"1","block_timestamp":"2026-01-02T00:00:00.000Z","receipt_status":"0"}
		]}`))
	}))
	defer srv.Close()

	m := NewMoralis(config.ProviderConfig{APIKey: "secret", BaseURL: srv.URL}, nil)
	evs, err := m.FetchActivity(context.Background(), wallet, types.BSC, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, evs, 2)

	assert.Equal(t, "0xt1", evs[0].TxHash)
	assert.Equal(t, "CAKE", evs[0].TokenSymbol, "the token leg wins over the zero-value native leg")
	assert.True(t, evs[0].Amount.Equal(decimal.NewFromInt(5000)))

	assert.Equal(t, "0xn1", evs[1].TxHash)
	assert.Equal(t, "BNB", evs[1].TokenSymbol)
	assert.True(t, evs[1].Amount.Equal(decimal.NewFromInt(2)))
}

func TestEtherscanEmptyAndErrors(t *testing.T) {
	var mode string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.URL.Query().Get("apikey"))
		switch mode {
		case "empty":
			_, _ = w.Write([]byte(`{"status":"0","message":"No transactions found","result":[]}`))
		case "ratelimit":
			_, _ = w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`))
		default:
			if r.URL.Query().Get("action") == "tokentx" {
				_, _ = w.Write([]byte(`{"status":"0","message":"No transactions found","result":[]}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":[
				{"hash":"0xe1","from":"0x9","to":"` + wallet + `","value":"3000000000000000000","timeStamp":"1767350000","isError":"0"},
				{"hash":"0xe2","from":"0x9","to":"` + wallet + `","value":"1","timeStamp":"1767350001","isError":"1"}
			]}`))
		}
	}))
	defer srv.Close()

	e := NewEtherscan(config.ProviderConfig{APIKey: "key", URLs: map[string]string{"polygon": srv.URL}}, nil)
	ctx := context.Background()

	mode = "empty"
	evs, err := e.FetchActivity(ctx, wallet, types.Polygon, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, evs)

	mode = "ratelimit"
	_, err = e.FetchActivity(ctx, wallet, types.Polygon, time.Time{})
	assert.Equal(t, KindRateLimited, kindOf(err))

	mode = "ok"
	evs, err = e.FetchActivity(ctx, wallet, types.Polygon, time.Time{})
	require.NoError(t, err)
	require.Len(t, evs, 1, "reverted transactions are skipped")
	assert.Equal(t, "POL", evs[0].TokenSymbol)
	assert.True(t, evs[0].Amount.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, time.Unix(1767350000, 0).UTC(), evs[0].Timestamp)
}

func TestScaleInt(t *testing.T) {
	v, ok := scaleInt("0x0de0b6b3a7640000", 18)
	require.True(t, ok)
	assert.True(t, v.Equal(decimal.NewFromInt(1)))

	v, ok = scaleInt("1234567", 6)
	require.True(t, ok)
	assert.Equal(t, "1.234567", v.String())

	_, ok = scaleInt("nope", 0)
	assert.False(t, ok)
}
