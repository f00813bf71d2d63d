package config

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/calebward/chainarb/internal/domain"
)

// DomainNetworks converts the configured networks to domain objects. The
// endpoint lists keep their configured order; the connection manager treats
// that order as failover preference.
func (c *Config) DomainNetworks() []domain.Network {
	out := make([]domain.Network, 0, len(c.Networks))
	for _, n := range c.Networks {
		out = append(out, domain.Network{
			ID:            n.ID,
			Name:          n.Name,
			BlockInterval: n.BlockInterval.Duration,
			GasUnits:      n.GasUnits,
			NativeToken:   n.NativeToken,
		})
	}
	return out
}

// DomainEndpoints returns the configured endpoints for one network.
func (c *Config) DomainEndpoints(networkID string) []domain.Endpoint {
	for _, n := range c.Networks {
		if n.ID != networkID {
			continue
		}
		out := make([]domain.Endpoint, 0, len(n.Endpoints))
		for _, e := range n.Endpoints {
			tr := domain.Transport(e.Transport)
			if tr == "" {
				tr = domain.TransportHTTP
			}
			out = append(out, domain.Endpoint{URL: e.URL, Transport: tr})
		}
		return out
	}
	return nil
}

// DomainPairs converts the configured pairs to domain objects.
func (c *Config) DomainPairs() []domain.TokenPair {
	out := make([]domain.TokenPair, 0, len(c.Pairs))
	for _, p := range c.Pairs {
		out = append(out, domain.TokenPair{
			Base:          p.Base,
			Quote:         p.Quote,
			BaseAddress:   common.HexToAddress(p.BaseAddress),
			QuoteAddress:  common.HexToAddress(p.QuoteAddress),
			BaseDecimals:  p.BaseDecimals,
			QuoteDecimals: p.QuoteDecimals,
		})
	}
	return out
}

// DomainVenues converts the configured venues to domain objects, dropping
// venues whose active flag is false.
func (c *Config) DomainVenues() []domain.Venue {
	out := make([]domain.Venue, 0, len(c.Venues))
	for _, v := range c.Venues {
		if !v.Active {
			continue
		}
		pools := make([]domain.Pool, 0, len(v.Pools))
		for _, p := range v.Pools {
			pools = append(pools, domain.Pool{
				Pair:         p.Pair,
				Address:      common.HexToAddress(p.Address),
				BaseIsToken0: p.BaseIsToken0,
			})
		}
		out = append(out, domain.Venue{
			Name:    v.Name,
			Network: v.Network,
			Kind:    domain.ProtocolKind(v.Kind),
			FeeBps:  v.FeeBps,
			Active:  v.Active,
			Pools:   pools,
		})
	}
	return out
}
