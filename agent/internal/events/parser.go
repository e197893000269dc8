package events

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// SolMintAddress is the wrapped SOL mint, treated as native SOL.
const SolMintAddress = "So11111111111111111111111111111111111111112"

const lamportsPerSOL = 9

// EnhancedTransaction is the subset of a Helius enhanced transaction we read.
type EnhancedTransaction struct {
	Signature        string           `json:"signature"`
	Timestamp        int64            `json:"timestamp"`
	Type             string           `json:"type"`
	Source           string           `json:"source"`
	FeePayer         string           `json:"feePayer"`
	TransactionError json.RawMessage  `json:"transactionError"`
	NativeTransfers  []NativeTransfer `json:"nativeTransfers"`
	TokenTransfers   []TokenTransfer  `json:"tokenTransfers"`
	Events           struct {
		Swap *SwapEvent `json:"swap"`
	} `json:"events"`
}

type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"`
}

type TokenTransfer struct {
	FromUserAccount string  `json:"fromUserAccount"`
	ToUserAccount   string  `json:"toUserAccount"`
	Mint            string  `json:"mint"`
	TokenAmount     float64 `json:"tokenAmount"`
	TokenStandard   string  `json:"tokenStandard"`
}

type SwapEvent struct {
	TokenInputs  []SwapLeg `json:"tokenInputs"`
	TokenOutputs []SwapLeg `json:"tokenOutputs"`
}

type SwapLeg struct {
	UserAccount string `json:"userAccount"`
	Mint        string `json:"mint"`
}

// Transfer is the wallet-relevant movement extracted from one transaction.
// Mint is empty for native SOL.
type Transfer struct {
	Signature string
	From      string
	To        string
	Mint      string
	Amount    decimal.Decimal
	Timestamp time.Time
}

// Failed reports whether the transaction reverted on chain.
func (tx EnhancedTransaction) Failed() bool {
	raw := bytes.TrimSpace(tx.TransactionError)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// ExtractTransfer picks the movement of the transaction that concerns wallet.
// SPL token transfers win over native lamport transfers; if nothing touches
// the wallet directly the transaction is reported as a zero-amount
// interaction carrying the first non-SOL mint it references.
func ExtractTransfer(tx EnhancedTransaction, wallet string) (Transfer, bool) {
	if tx.Signature == "" || tx.Timestamp == 0 || tx.Failed() {
		return Transfer{}, false
	}
	base := Transfer{Signature: tx.Signature, Timestamp: time.Unix(tx.Timestamp, 0).UTC()}

	for _, t := range tx.TokenTransfers {
		if t.FromUserAccount != wallet && t.ToUserAccount != wallet {
			continue
		}
		if t.Mint == "" || t.Mint == SolMintAddress {
			continue
		}
		out := base
		out.From, out.To, out.Mint = t.FromUserAccount, t.ToUserAccount, t.Mint
		out.Amount = decimal.NewFromFloat(t.TokenAmount)
		return out, true
	}

	// Net native movement, counting wrapped SOL legs as native.
	net := decimal.Zero
	var counterparty string
	var touched bool
	for _, n := range tx.NativeTransfers {
		amt := decimal.New(n.Amount, -lamportsPerSOL)
		switch wallet {
		case n.FromUserAccount:
			net = net.Sub(amt)
			counterparty, touched = pick(counterparty, n.ToUserAccount), true
		case n.ToUserAccount:
			net = net.Add(amt)
			counterparty, touched = pick(counterparty, n.FromUserAccount), true
		}
	}
	for _, t := range tx.TokenTransfers {
		if t.Mint != SolMintAddress {
			continue
		}
		amt := decimal.NewFromFloat(t.TokenAmount)
		switch wallet {
		case t.FromUserAccount:
			net = net.Sub(amt)
			counterparty, touched = pick(counterparty, t.ToUserAccount), true
		case t.ToUserAccount:
			net = net.Add(amt)
			counterparty, touched = pick(counterparty, t.FromUserAccount), true
		}
	}
	if touched {
		out := base
		if net.IsNegative() {
			out.From, out.To = wallet, counterparty
		} else {
			out.From, out.To = counterparty, wallet
		}
		out.Amount = net.Abs()
		return out, true
	}

	if mint, ok := ExtractNonSolMint(tx); ok {
		out := base
		out.From = tx.FeePayer
		out.Mint = mint
		out.Amount = decimal.Zero
		return out, true
	}
	return Transfer{}, false
}

func pick(current, candidate string) string {
	if current != "" {
		return current
	}
	return candidate
}

// ExtractNonSolMint returns the first non-SOL mint referenced by the
// transaction's token transfers or swap legs (outputs before inputs).
func ExtractNonSolMint(tx EnhancedTransaction) (string, bool) {
	for _, t := range tx.TokenTransfers {
		if t.Mint != "" && t.Mint != SolMintAddress {
			return t.Mint, true
		}
	}
	if swap := tx.Events.Swap; swap != nil {
		for _, leg := range swap.TokenOutputs {
			if leg.Mint != "" && leg.Mint != SolMintAddress {
				return leg.Mint, true
			}
		}
		for _, leg := range swap.TokenInputs {
			if leg.Mint != "" && leg.Mint != SolMintAddress {
				return leg.Mint, true
			}
		}
	}
	return "", false
}
