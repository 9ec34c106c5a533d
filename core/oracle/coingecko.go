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

type CoingeckoProvider struct {
	providerCfg config.PriceProvider
	networkHttp network.Http
}

func NewCoingeckoProvider(networkHttp network.Http, providerCfg config.PriceProvider) Provider {
	return &CoingeckoProvider{
		networkHttp: networkHttp,
		providerCfg: providerCfg,
	}
}

func (p *CoingeckoProvider) GetPrice(token config.Token) (decimal.Decimal, error) {
	if token.CoincapName == "" {
		return decimal.Zero, fmt.Errorf("Empty coingecko id for token %s", token.Symbol)
	}

	req, err := http.NewRequest("GET", p.providerCfg.Url, nil)
	if err != nil {
		return decimal.Zero, err
	}

	q := req.URL.Query()
	q.Add("ids", token.CoincapName)
	q.Add("vs_currencies", "usd")
	req.URL.RawQuery = q.Encode()

	if secret := randomSecret(p.providerCfg.Secrets); secret != "" {
		req.Header.Set("x-cg-pro-api-key", secret)
	}

	data, err := p.networkHttp.Get(req)
	if err != nil {
		return decimal.Zero, err
	}

	response := map[string]struct {
		USD json.Number `json:"usd"`
	}{}
	if err := json.Unmarshal(data, &response); err != nil {
		return decimal.Zero, err
	}

	price, ok := response[token.CoincapName]
	if !ok {
		return decimal.Zero, fmt.Errorf("Token %s not found in the response %s", token.CoincapName, string(data))
	}

	return utils.ParseUsd(price.USD.String())
}
