package oracle

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/sisu-network/hbridge/config"
	"github.com/sisu-network/hbridge/network"
	"github.com/sisu-network/hbridge/utils"
)

type CoinMarketCap struct {
	providerCfg config.PriceProvider
	networkHttp network.Http
}

func NewCoinMarketCap(networkHttp network.Http, providerCfg config.PriceProvider) Provider {
	return &CoinMarketCap{
		networkHttp: networkHttp,
		providerCfg: providerCfg,
	}
}

func (p *CoinMarketCap) GetPrice(token config.Token) (decimal.Decimal, error) {
	req, err := http.NewRequest("GET", p.providerCfg.Url, nil)
	if err != nil {
		return decimal.Zero, err
	}

	secret := randomSecret(p.providerCfg.Secrets)
	if len(secret) == 0 {
		return decimal.Zero, fmt.Errorf("No secret for coin market cap")
	}
	req.Header.Add("X-CMC_PRO_API_KEY", secret)

	q := req.URL.Query()
	q.Add("symbol", token.Symbol)
	req.URL.RawQuery = q.Encode()

	data, err := p.networkHttp.Get(req)
	if err != nil {
		return decimal.Zero, err
	}

	// The price is kept as a raw number so no precision is lost in a float.
	response := struct {
		Data map[string]struct {
			Quote struct {
				Usd struct {
					Price json.Number `json:"price"`
				} `json:"USD"`
			} `json:"quote"`
		} `json:"data"`
	}{}
	if err := json.Unmarshal(data, &response); err != nil {
		return decimal.Zero, err
	}

	tokenPrice, ok := response.Data[token.Symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("Token %s not found in the response %s", token.Symbol, string(data))
	}

	return utils.ParseUsd(tokenPrice.Quote.Usd.Price.String())
}
