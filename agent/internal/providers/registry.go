package providers

import (
	"go.uber.org/zap"

	"wallet-watch/shared/config"
	"wallet-watch/shared/logger"
	"wallet-watch/shared/types"
)

// Registry resolves the ordered provider list for a chain.
type Registry struct {
	byName map[string]Provider
	order  map[types.Chain][]string
}

// NewRegistry wires every provider that has credentials. A provider missing
// its key is left out of every chain's order.
func NewRegistry(cfg *config.Config, appLogger *logger.Logger) *Registry {
	if appLogger == nil {
		appLogger = logger.NewNop()
	}
	var list []Provider

	p := cfg.Providers
	if p.Alchemy.APIKey != "" || len(p.Alchemy.URLs) > 0 || p.Alchemy.BaseURL != "" {
		list = append(list, NewAlchemy(p.Alchemy, appLogger))
	} else {
		appLogger.Warn("Alchemy provider disabled: no API key configured")
	}
	if p.Moralis.APIKey != "" {
		list = append(list, NewMoralis(p.Moralis, appLogger))
	} else {
		appLogger.Warn("Moralis provider disabled: no API key configured")
	}
	if p.Etherscan.APIKey != "" {
		list = append(list, NewEtherscan(p.Etherscan, appLogger))
	} else {
		appLogger.Warn("Etherscan provider disabled: no API key configured")
	}
	if p.Helius.APIKey != "" {
		list = append(list, NewHelius(p.Helius, appLogger))
	} else {
		appLogger.Warn("Helius provider disabled: no API key configured")
	}
	// Public RPC works without credentials.
	list = append(list, NewSolanaRPC(p.SolanaRPC, appLogger))

	order := make(map[types.Chain][]string, len(cfg.Providers.Order))
	for chain, names := range cfg.Providers.Order {
		c, err := types.ParseChain(chain)
		if err != nil {
			appLogger.Warn("Ignoring provider order for unknown chain", zap.String("chain", chain))
			continue
		}
		order[c] = names
	}

	r := NewRegistryFrom(order, list...)
	for _, c := range types.SupportedChains() {
		if len(r.ForChain(c)) == 0 {
			appLogger.Warn("No provider available for chain, its entries will fail", zap.String("chain", c.String()))
		}
	}
	return r
}

// NewRegistryFrom builds a registry from explicit providers.
func NewRegistryFrom(order map[types.Chain][]string, list ...Provider) *Registry {
	r := &Registry{
		byName: make(map[string]Provider, len(list)),
		order:  order,
	}
	for _, p := range list {
		r.byName[p.Name()] = p
	}
	return r
}

// ForChain returns the providers for chain in configured order, skipping
// names that are not registered or do not support the chain.
func (r *Registry) ForChain(chain types.Chain) []Provider {
	var out []Provider
	for _, name := range r.order[chain] {
		p, ok := r.byName[name]
		if !ok || !p.Supports(chain) {
			continue
		}
		out = append(out, p)
	}
	return out
}
