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

type CoinCapProvider struct {
	providerCfg config.PriceProvider
	networkHttp network.Http
}

func NewCoinCapProvider(networkHttp network.Http, providerCfg config.PriceProvider) Provider {
	return &CoinCapProvider{
		networkHttp: networkHttp,
		providerCfg: providerCfg,
	}
}

func (p *CoinCapProvider) GetPrice(token config.Token) (decimal.Decimal, error) {
	if token.CoincapName == "" {
		return decimal.Zero, fmt.Errorf("Empty coincap name for token %s", token.Symbol)
	}

	req, err := http.NewRequest("GET", fmt.Sprintf("%s/%s", p.providerCfg.Url, token.CoincapName), nil)
	if err != nil {
		return decimal.Zero, err
	}

	secret := randomSecret(p.providerCfg.Secrets)
	if len(secret) == 0 {
		return decimal.Zero, fmt.Errorf("No secret for coin cap")
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", secret))

	data, err := p.networkHttp.Get(req)
	if err != nil {
		return decimal.Zero, err
	}

	response := struct {
		Data struct {
			RateUsd string `json:"rateUsd"`
		} `json:"data"`
	}{}
	if err := json.Unmarshal(data, &response); err != nil {
		return decimal.Zero, err
	}

	return utils.ParseUsd(response.Data.RateUsd)
}
