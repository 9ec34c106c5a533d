package eth

import (
	"crypto/ecdsa"
	"math/big"
	"strings"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sisu-network/hbridge/utils"
)

// KeySigner signs the transactions this node broadcasts. The key only pays gas; the multisig
// authorization comes from the aggregated signatures of the request.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address string
}

func NewKeySigner(hexKey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, err
	}

	return &KeySigner{
		key:     key,
		address: strings.ToLower(utils.PublicKeyBytesToAddress(crypto.FromECDSAPub(&key.PublicKey)).Hex()),
	}, nil
}

func (s *KeySigner) Address() string {
	return s.address
}

func (s *KeySigner) SignTx(tx *ethtypes.Transaction, chainId int64) (*ethtypes.Transaction, error) {
	return ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(big.NewInt(chainId)), s.key)
}
