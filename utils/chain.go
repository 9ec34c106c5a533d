package utils

import (
	"math/big"

	etypes "github.com/ethereum/go-ethereum/core/types"
)

// GetEthChainSigner returns the signer accepting every tx type known to the chain id.
func GetEthChainSigner(chainId int64) etypes.Signer {
	return etypes.LatestSignerForChainID(big.NewInt(chainId))
}
