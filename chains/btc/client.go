package btc

import (
	"context"
	"encoding/hex"
	"errors"
	"math/rand"
	"strings"

	"github.com/sisu-network/hbridge/config"
	"github.com/sisu-network/lib/log"
	"github.com/ybbus/jsonrpc/v3"
)

// Error codes of bitcoind.
const (
	RpcInvalidAddressOrKey  = -5
	RpcVerifyAlreadyInChain = -27
)

type BlockHeader struct {
	Hash              string `json:"hash"`
	Height            int64  `json:"height"`
	Time              int64  `json:"time"`
	PreviousBlockHash string `json:"previousblockhash"`
}

type ScriptPubKey struct {
	Hex     string `json:"hex"`
	Type    string `json:"type"`
	Address string `json:"address"`
}

type Prevout struct {
	Value        float64      `json:"value"`
	ScriptPubKey ScriptPubKey `json:"scriptPubKey"`
}

type Vin struct {
	Txid     string   `json:"txid"`
	Vout     uint32   `json:"vout"`
	Coinbase string   `json:"coinbase"`
	Prevout  *Prevout `json:"prevout"`
}

type Vout struct {
	Value        float64      `json:"value"`
	N            uint32       `json:"n"`
	ScriptPubKey ScriptPubKey `json:"scriptPubKey"`
}

type RawTx struct {
	Txid          string `json:"txid"`
	Hex           string `json:"hex"`
	BlockHash     string `json:"blockhash"`
	Confirmations int64  `json:"confirmations"`
	Vin           []Vin  `json:"vin"`
	Vout          []Vout `json:"vout"`
}

type Block struct {
	BlockHeader
	Tx []RawTx `json:"tx"`
}

type Unspent struct {
	Txid          string  `json:"txid"`
	Vout          uint32  `json:"vout"`
	Address       string  `json:"address"`
	Amount        float64 `json:"amount"`
	Confirmations int64   `json:"confirmations"`
	ScriptPubKey  string  `json:"scriptPubKey"`
}

type SmartFee struct {
	FeeRate float64  `json:"feerate"`
	Errors  []string `json:"errors"`
}

type MempoolAccept struct {
	Txid         string `json:"txid"`
	Allowed      bool   `json:"allowed"`
	RejectReason string `json:"reject-reason"`
}

// Client talks to one or more bitcoind nodes. Every call is tried on the nodes in random order
// until one of them answers.
type Client interface {
	BlockCount(ctx context.Context) (int64, error)
	BlockHash(ctx context.Context, height int64) (string, error)
	BlockHeader(ctx context.Context, hash string) (*BlockHeader, error)
	Block(ctx context.Context, hash string) (*Block, error)
	RawTransaction(ctx context.Context, txid string) (*RawTx, error)
	EstimateSmartFee(ctx context.Context, target int) (*SmartFee, error)
	TestMempoolAccept(ctx context.Context, raw []byte) (*MempoolAccept, error)
	SendRawTransaction(ctx context.Context, raw []byte) (string, error)
	ListUnspent(ctx context.Context, address string) ([]*Unspent, error)
}

type defaultClient struct {
	chain   string
	clients []jsonrpc.RPCClient
}

func NewClient(cfg config.Chain) Client {
	clients := make([]jsonrpc.RPCClient, 0, len(cfg.Rpcs))
	for _, rpc := range cfg.Rpcs {
		clients = append(clients, jsonrpc.NewClient(rpc))
	}

	return &defaultClient{
		chain:   cfg.Chain,
		clients: clients,
	}
}

// shuffleClients returns a random permutation of the clients.
func shuffleClients(c []jsonrpc.RPCClient) []jsonrpc.RPCClient {
	clients := make([]jsonrpc.RPCClient, len(c))
	copy(clients, c)
	rand.Shuffle(len(clients), func(i, j int) {
		clients[i], clients[j] = clients[j], clients[i]
	})

	return clients
}

// executeWithClients runs f on the clients until one of them succeeds or f asks to stop.
func executeWithClients[T any](originalClients []jsonrpc.RPCClient, f func(client jsonrpc.RPCClient) (T, bool, error)) (T, error) {
	var err error
	var stop bool
	var result T

	if len(originalClients) == 0 {
		return result, errors.New("no rpc configured")
	}

	for _, client := range shuffleClients(originalClients) {
		if result, stop, err = f(client); err == nil || stop {
			return result, err
		}
	}

	return result, err
}

// call runs a json rpc method and decodes its result into T. RPC errors returned by a node are
// final and are not retried on the other nodes.
func call[T any](ctx context.Context, c *defaultClient, method string, params ...interface{}) (T, error) {
	return executeWithClients(c.clients, func(client jsonrpc.RPCClient) (T, bool, error) {
		var result T
		err := client.CallFor(ctx, &result, method, params...)
		if err != nil {
			var rpcErr *jsonrpc.RPCError
			if errors.As(err, &rpcErr) {
				return result, true, rpcErr
			}

			log.Verbosef("%s: %s failed, err = %v", c.chain, method, err)
			return result, false, err
		}

		return result, true, nil
	})
}

func (c *defaultClient) BlockCount(ctx context.Context) (int64, error) {
	return call[int64](ctx, c, "getblockcount")
}

func (c *defaultClient) BlockHash(ctx context.Context, height int64) (string, error) {
	return call[string](ctx, c, "getblockhash", height)
}

func (c *defaultClient) BlockHeader(ctx context.Context, hash string) (*BlockHeader, error) {
	return call[*BlockHeader](ctx, c, "getblockheader", hash, true)
}

func (c *defaultClient) Block(ctx context.Context, hash string) (*Block, error) {
	// Verbosity 3 includes the prevout of every input.
	return call[*Block](ctx, c, "getblock", hash, 3)
}

func (c *defaultClient) RawTransaction(ctx context.Context, txid string) (*RawTx, error) {
	tx, err := call[*RawTx](ctx, c, "getrawtransaction", txid, true)
	if isRpcCode(err, RpcInvalidAddressOrKey) {
		return nil, nil
	}

	return tx, err
}

func (c *defaultClient) EstimateSmartFee(ctx context.Context, target int) (*SmartFee, error) {
	return call[*SmartFee](ctx, c, "estimatesmartfee", target)
}

func (c *defaultClient) TestMempoolAccept(ctx context.Context, raw []byte) (*MempoolAccept, error) {
	results, err := call[[]*MempoolAccept](ctx, c, "testmempoolaccept",
		[]interface{}{[]string{hex.EncodeToString(raw)}})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, errors.New("empty testmempoolaccept result")
	}

	return results[0], nil
}

func (c *defaultClient) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	return call[string](ctx, c, "sendrawtransaction", hex.EncodeToString(raw))
}

func (c *defaultClient) ListUnspent(ctx context.Context, address string) ([]*Unspent, error) {
	return call[[]*Unspent](ctx, c, "listunspent", 1, 9_999_999, []string{address})
}

func isRpcCode(err error, code int) bool {
	var rpcErr *jsonrpc.RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == code
}

// isAlreadyBroadcast returns true if bitcoind rejected a transaction because it already has it.
func isAlreadyBroadcast(err error) bool {
	if err == nil {
		return false
	}
	if isRpcCode(err, RpcVerifyAlreadyInChain) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already in block chain") || strings.Contains(msg, "txn-already-in-mempool") ||
		strings.Contains(msg, "txn-already-known")
}
