package types

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
)

// Chain identifies a supported network.
type Chain string

const (
	Ethereum  Chain = "ethereum"
	Base      Chain = "base"
	BSC       Chain = "bsc"
	Polygon   Chain = "polygon"
	Arbitrum  Chain = "arbitrum"
	Optimism  Chain = "optimism"
	Avalanche Chain = "avalanche"
	Solana    Chain = "solana"
)

var supportedChains = []Chain{Ethereum, Base, BSC, Polygon, Arbitrum, Optimism, Avalanche, Solana}

// SupportedChains returns every chain the monitor can watch.
func SupportedChains() []Chain {
	out := make([]Chain, len(supportedChains))
	copy(out, supportedChains)
	return out
}

// ParseChain accepts the canonical name plus a few common aliases.
func ParseChain(raw string) (Chain, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "eth", "mainnet":
		return Ethereum, nil
	case "bnb", "binance":
		return BSC, nil
	case "matic":
		return Polygon, nil
	case "arb":
		return Arbitrum, nil
	case "op":
		return Optimism, nil
	case "avax":
		return Avalanche, nil
	case "sol":
		return Solana, nil
	}
	for _, c := range supportedChains {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unsupported chain %q", raw)
}

func (c Chain) IsEVM() bool {
	return c != Solana && c != ""
}

func (c Chain) String() string { return string(c) }

// NativeSymbol is the gas token ticker of the chain.
func (c Chain) NativeSymbol() string {
	switch c {
	case BSC:
		return "BNB"
	case Polygon:
		return "POL"
	case Avalanche:
		return "AVAX"
	case Solana:
		return "SOL"
	default:
		return "ETH"
	}
}

// ExplorerTxURL links a transaction on the chain's public explorer.
func (c Chain) ExplorerTxURL(txHash string) string {
	switch c {
	case Base:
		return "https://basescan.org/tx/" + txHash
	case BSC:
		return "https://bscscan.com/tx/" + txHash
	case Polygon:
		return "https://polygonscan.com/tx/" + txHash
	case Arbitrum:
		return "https://arbiscan.io/tx/" + txHash
	case Optimism:
		return "https://optimistic.etherscan.io/tx/" + txHash
	case Avalanche:
		return "https://snowtrace.io/tx/" + txHash
	case Solana:
		return "https://solscan.io/tx/" + txHash
	default:
		return "https://etherscan.io/tx/" + txHash
	}
}

// NormalizeAddress validates addr for the chain and returns its canonical form.
// EVM addresses are lowercased; Solana base58 keys keep their case.
func NormalizeAddress(chain Chain, addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("address is required")
	}
	if chain == Solana {
		pk, err := solana.PublicKeyFromBase58(addr)
		if err != nil {
			return "", fmt.Errorf("invalid solana address %q: %w", addr, err)
		}
		return pk.String(), nil
	}
	if !chain.IsEVM() {
		return "", fmt.Errorf("unsupported chain %q", chain)
	}
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("invalid %s address %q", chain, addr)
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

// CanonicalAddress is NormalizeAddress without validation, for data coming back
// from providers that may carry program ids or empty counterparties.
func CanonicalAddress(chain Chain, addr string) string {
	addr = strings.TrimSpace(addr)
	if chain.IsEVM() {
		return strings.ToLower(addr)
	}
	return addr
}

// NormalizeTxHash lowercases EVM hashes. Solana signatures are base58 and
// therefore case-sensitive.
func NormalizeTxHash(chain Chain, hash string) string {
	hash = strings.TrimSpace(hash)
	if chain.IsEVM() {
		return strings.ToLower(hash)
	}
	return hash
}

// SameAddress compares two addresses using the chain's casing rules.
func SameAddress(chain Chain, a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return CanonicalAddress(chain, a) == CanonicalAddress(chain, b)
}

// ShortAddress renders 0x1234...abcd style abbreviations.
func ShortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
