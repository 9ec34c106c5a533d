package btc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcutil"
	"github.com/sisu-network/hbridge/types"
)

// Length of the null data memo of bridge transactions: the tx type and a 32 byte home chain hash.
const memoLen = 33

func NetParams(network string) (*chaincfg.Params, error) {
	switch strings.ToLower(network) {
	case "", "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	}

	return nil, fmt.Errorf("unknown btc network %s", network)
}

// multisig is an m-of-n P2WSH custody address.
type multisig struct {
	pubkeys      []string
	threshold    int
	redeemScript []byte
	pkScript     []byte
	address      string
}

// newMultisig sorts the hex encoded public keys and builds the witness script and address.
func newMultisig(pubkeys []string, threshold int, params *chaincfg.Params) (*multisig, error) {
	if threshold <= 0 || threshold > len(pubkeys) {
		return nil, fmt.Errorf("invalid multisig threshold %d of %d", threshold, len(pubkeys))
	}

	sorted := make([]string, 0, len(pubkeys))
	for _, pk := range pubkeys {
		sorted = append(sorted, strings.ToLower(pk))
	}
	sort.Strings(sorted)

	keys := make([]*btcutil.AddressPubKey, 0, len(sorted))
	for _, pk := range sorted {
		bz, err := hex.DecodeString(pk)
		if err != nil {
			return nil, fmt.Errorf("invalid pubkey %s: %w", pk, err)
		}
		key, err := btcutil.NewAddressPubKey(bz, params)
		if err != nil {
			return nil, fmt.Errorf("invalid pubkey %s: %w", pk, err)
		}
		keys = append(keys, key)
	}

	redeemScript, err := txscript.MultiSigScript(keys, threshold)
	if err != nil {
		return nil, err
	}

	scriptHash := sha256.Sum256(redeemScript)
	addr, err := btcutil.NewAddressWitnessScriptHash(scriptHash[:], params)
	if err != nil {
		return nil, err
	}

	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}

	return &multisig{
		pubkeys:      sorted,
		threshold:    threshold,
		redeemScript: redeemScript,
		pkScript:     pkScript,
		address:      addr.EncodeAddress(),
	}, nil
}

func (m *multisig) indexOf(pubkey string) int {
	pubkey = strings.ToLower(pubkey)
	for i, pk := range m.pubkeys {
		if pk == pubkey {
			return i
		}
	}

	return -1
}

// changed returns the pubkey set after applying the manager change.
func (m *multisig) changed(adds, removes []string) []string {
	removed := make(map[string]bool)
	for _, pk := range removes {
		removed[strings.ToLower(pk)] = true
	}

	ret := make([]string, 0, len(m.pubkeys)+len(adds))
	for _, pk := range m.pubkeys {
		if !removed[pk] {
			ret = append(ret, pk)
		}
	}
	for _, pk := range adds {
		ret = append(ret, strings.ToLower(pk))
	}

	return ret
}

func encodeMemo(txType types.TxType, nerveTxHash string) ([]byte, error) {
	hash, err := hex.DecodeString(types.NormalizeHash(nerveTxHash))
	if err != nil || len(hash) != memoLen-1 {
		return nil, fmt.Errorf("invalid home chain hash %s", nerveTxHash)
	}

	return append([]byte{byte(txType)}, hash...), nil
}

// decodeMemo parses a typed memo. Deposits carry the plain home chain recipient instead, which
// never starts with a control byte.
func decodeMemo(data []byte) (types.TxType, string, bool) {
	if len(data) != memoLen || data[0] >= 0x20 {
		return 0, "", false
	}

	return types.TxType(data[0]), hex.EncodeToString(data[1:]), true
}
