package oracle

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sisu-network/hbridge/config"
	"github.com/sisu-network/hbridge/network"
	"github.com/sisu-network/lib/log"
)

const (
	UpdateFrequency = 10 * time.Minute
)

type priceCache struct {
	price      decimal.Decimal
	updateTime time.Time
}

// TokenPriceManager returns the USD price of an asset. The price is the median of all providers
// that answered.
type TokenPriceManager interface {
	UsdPrice(asset string) (decimal.Decimal, error)
}

type defaultTokenPriceManager struct {
	cache           *sync.Map
	updateFrequency time.Duration
	providers       map[string]Provider
	tokens          map[string]config.Token
}

func NewTokenPriceManager(providerCfgs map[string]config.PriceProvider,
	tokens map[string]config.Token, networkHttp network.Http) TokenPriceManager {

	providers := make(map[string]Provider)
	for name, providerCfg := range providerCfgs {
		switch name {
		case "coin_cap":
			providers[name] = NewCoinCapProvider(networkHttp, providerCfg)

		case "coin_market_cap":
			providers[name] = NewCoinMarketCap(networkHttp, providerCfg)

		case "coingecko":
			providers[name] = NewCoingeckoProvider(networkHttp, providerCfg)

		default:
			log.Errorf("Unknown price provider %s", name)
		}
	}

	return newTokenPriceManager(providers, tokens)
}

func newTokenPriceManager(providers map[string]Provider, tokens map[string]config.Token) *defaultTokenPriceManager {
	normalized := make(map[string]config.Token)
	for id, token := range tokens {
		if token.Symbol == "" {
			token.Symbol = id
		}
		normalized[strings.ToUpper(id)] = token
	}

	return &defaultTokenPriceManager{
		cache:           &sync.Map{},
		updateFrequency: UpdateFrequency,
		tokens:          normalized,
		providers:       providers,
	}
}

func (m *defaultTokenPriceManager) getTokenPrice(id string) (decimal.Decimal, error) {
	token, ok := m.tokens[id]
	if !ok {
		return decimal.Zero, fmt.Errorf("Token %s not supported", id)
	}

	priceMap := &sync.Map{}
	wg := &sync.WaitGroup{}
	for name, provider := range m.providers {
		wg.Add(1)
		go func(name string, provider Provider) {
			defer wg.Done()

			price, err := provider.GetPrice(token)
			if err != nil {
				log.Errorf("Failed to get token price for provider %s, err = %s", name, err)
				return
			}

			priceMap.Store(name, price)
		}(name, provider)
	}
	wg.Wait()

	prices := make([]decimal.Decimal, 0)
	priceMap.Range(func(key, value interface{}) bool {
		prices = append(prices, value.(decimal.Decimal))
		return true
	})

	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("Cannot find price from any provider for token %s", id)
	}

	sort.Slice(prices, func(i, j int) bool {
		return prices[i].LessThan(prices[j])
	})

	return prices[len(prices)/2], nil
}

func (m *defaultTokenPriceManager) UsdPrice(asset string) (decimal.Decimal, error) {
	id := strings.ToUpper(asset)

	if value, ok := m.cache.Load(id); ok {
		cache := value.(*priceCache)
		if time.Since(cache.updateTime) < m.updateFrequency {
			return cache.price, nil
		}
	}

	price, err := m.getTokenPrice(id)
	if err != nil {
		// A stale price is better than none.
		if value, ok := m.cache.Load(id); ok {
			log.Warnf("Using stale price for %s, err = %s", id, err)
			return value.(*priceCache).price, nil
		}

		return decimal.Zero, err
	}

	m.cache.Store(id, &priceCache{
		price:      price,
		updateTime: time.Now(),
	})

	return price, nil
}
