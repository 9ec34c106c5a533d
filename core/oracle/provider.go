package oracle

import (
	"math/rand"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sisu-network/hbridge/config"
)

type Provider interface {
	GetPrice(token config.Token) (decimal.Decimal, error)
}

func randomSecret(secrets string) string {
	list := make([]string, 0)
	for _, s := range strings.Split(secrets, ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}

	if len(list) == 0 {
		return ""
	}

	return list[rand.Intn(len(list))]
}
