package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"wallet-watch/shared/config"
	"wallet-watch/shared/logger"
	"wallet-watch/shared/types"
	"wallet-watch/shared/utils"
)

const SolanaRPCName = "solana_rpc"

// SolanaRPC falls back to plain JSON-RPC: signatures for the address, then
// each transaction's balance delta for the watched account. It only sees
// native SOL movements.
type SolanaRPC struct {
	client    *rpc.Client
	limiter   *rate.Limiter
	pageSize  int
	appLogger *logger.Logger
}

func NewSolanaRPC(cfg config.ProviderConfig, appLogger *logger.Logger) *SolanaRPC {
	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = rpc.MainNetBeta_RPC
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if appLogger == nil {
		appLogger = logger.NewNop()
	}
	appLogger.Debug("Solana RPC provider configured", zap.String("url", utils.SanitizeURL(endpoint)))
	return &SolanaRPC{
		client:    rpc.New(endpoint),
		limiter:   rate.NewLimiter(limit, burst),
		pageSize:  pageSize,
		appLogger: appLogger,
	}
}

func (s *SolanaRPC) Name() string { return SolanaRPCName }

func (s *SolanaRPC) Supports(chain types.Chain) bool { return chain == types.Solana }

func (s *SolanaRPC) FetchActivity(ctx context.Context, address string, chain types.Chain, since time.Time) ([]ActivityEvent, error) {
	if chain != types.Solana {
		return nil, newError(SolanaRPCName, KindUnsupported, 0, fmt.Errorf("chain %s", chain))
	}
	owner, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, newError(SolanaRPCName, KindUnsupported, 0, fmt.Errorf("invalid address %q: %w", address, err))
	}

	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	limit := s.pageSize
	sigs, err := s.client.GetSignaturesForAddressWithOpts(ctx, owner, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return nil, Classify(SolanaRPCName, fmt.Errorf("getSignaturesForAddress: %w", err))
	}

	var out []ActivityEvent
	for _, sig := range sigs {
		if sig.BlockTime == nil {
			continue
		}
		ts := sig.BlockTime.Time().UTC()
		// Signatures come newest first.
		if !since.IsZero() && ts.Before(since) {
			break
		}
		if sig.Err != nil {
			continue
		}
		ev, ok, err := s.transaction(ctx, owner, sig.Signature, ts)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, ev)
		}
	}
	return mergeByHash(chain, out, since), nil
}

func (s *SolanaRPC) transaction(ctx context.Context, owner solana.PublicKey, sig solana.Signature, ts time.Time) (ActivityEvent, bool, error) {
	if err := s.wait(ctx); err != nil {
		return ActivityEvent{}, false, err
	}
	maxVersion := uint64(0)
	res, err := s.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentFinalized,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return ActivityEvent{}, false, Classify(SolanaRPCName, fmt.Errorf("getTransaction %s: %w", sig, err))
	}
	if res == nil || res.Meta == nil || res.Transaction == nil {
		return ActivityEvent{}, false, nil
	}
	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return ActivityEvent{}, false, newError(SolanaRPCName, KindMalformed, 0, fmt.Errorf("decode transaction %s: %w", sig, err))
	}

	keys := tx.Message.AccountKeys
	meta := res.Meta
	if len(meta.PreBalances) < len(keys) || len(meta.PostBalances) < len(keys) {
		return ActivityEvent{}, false, nil
	}
	idx := -1
	for i, k := range keys {
		if k.Equals(owner) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ActivityEvent{}, false, nil
	}

	delta := func(i int) int64 {
		d := int64(meta.PostBalances[i]) - int64(meta.PreBalances[i])
		if i == 0 {
			// The fee payer's delta includes the fee.
			d += int64(meta.Fee)
		}
		return d
	}
	own := delta(idx)

	// Counterparty is the account whose balance moved the most the other way.
	var counterparty string
	var best int64
	for i := range keys {
		if i == idx {
			continue
		}
		d := delta(i)
		if (own < 0 && d > best) || (own > 0 && d < best) {
			best = d
			counterparty = keys[i].String()
		}
	}

	ev := ActivityEvent{
		TxHash:      sig.String(),
		Amount:      decimal.New(abs64(own), -lamportsDecimals),
		TokenSymbol: types.Solana.NativeSymbol(),
		Timestamp:   ts,
	}
	switch {
	case own < 0:
		ev.From, ev.To = owner.String(), counterparty
	case own > 0:
		ev.From, ev.To = counterparty, owner.String()
	default:
		ev.From = keys[0].String()
	}
	return ev, true, nil
}

const lamportsDecimals = 9

func (s *SolanaRPC) wait(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return Classify(SolanaRPCName, ctx.Err())
		}
		return newError(SolanaRPCName, KindRateLimited, 0, fmt.Errorf("local rate limiter: %w", err))
	}
	return nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
