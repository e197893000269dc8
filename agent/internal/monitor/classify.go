package monitor

import (
	"github.com/shopspring/decimal"

	"wallet-watch/agent/internal/models"
	"wallet-watch/shared/types"
)

// Classifier assigns direction and category to an event.
type Classifier struct {
	whaleUSD  decimal.Decimal
	exchanges map[types.Chain]map[string]struct{}
}

// NewClassifier takes the whale threshold in USD and known exchange wallets
// keyed by chain name.
func NewClassifier(whaleUSD float64, exchanges map[string][]string) *Classifier {
	c := &Classifier{
		whaleUSD:  decimal.NewFromFloat(whaleUSD),
		exchanges: make(map[types.Chain]map[string]struct{}),
	}
	for name, addrs := range exchanges {
		chain, err := types.ParseChain(name)
		if err != nil {
			continue
		}
		set := make(map[string]struct{}, len(addrs))
		for _, a := range addrs {
			set[types.CanonicalAddress(chain, a)] = struct{}{}
		}
		c.exchanges[chain] = set
	}
	return c
}

func (c *Classifier) Direction(chain types.Chain, wallet, from, to string) models.Direction {
	fromMe := from != "" && types.SameAddress(chain, from, wallet)
	toMe := to != "" && types.SameAddress(chain, to, wallet)
	switch {
	case fromMe && toMe:
		return models.DirectionSelf
	case fromMe:
		return models.DirectionSent
	case toMe:
		return models.DirectionReceived
	}
	return models.DirectionContract
}

// Classify picks whale over exchange_flow over transfer.
func (c *Classifier) Classify(chain types.Chain, dir models.Direction, from, to string, usd decimal.NullDecimal) models.Classification {
	if usd.Valid && c.whaleUSD.IsPositive() && usd.Decimal.GreaterThanOrEqual(c.whaleUSD) {
		return models.ClassWhale
	}
	switch dir {
	case models.DirectionSent:
		if c.isExchange(chain, to) {
			return models.ClassExchangeFlow
		}
	case models.DirectionReceived:
		if c.isExchange(chain, from) {
			return models.ClassExchangeFlow
		}
	case models.DirectionContract:
		if c.isExchange(chain, from) || c.isExchange(chain, to) {
			return models.ClassExchangeFlow
		}
	}
	return models.ClassTransfer
}

func (c *Classifier) isExchange(chain types.Chain, addr string) bool {
	if addr == "" {
		return false
	}
	_, ok := c.exchanges[chain][types.CanonicalAddress(chain, addr)]
	return ok
}
