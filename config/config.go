package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	FamilyEth = "eth"
	FamilyBtc = "btc"
)

type PriceProvider struct {
	Url     string `toml:"url"`
	Secrets string `toml:"secrets"`
}

type Token struct {
	Symbol      string `toml:"symbol"`
	CoincapName string `toml:"coincap_name"`
}

type Chain struct {
	Chain   string   `toml:"chain"`
	Family  string   `toml:"family"`
	ChainId int64    `toml:"chain_id"`
	Rpcs    []string `toml:"rpcs"`

	// Block time and scan interval are in milliseconds.
	BlockTime    int `toml:"block_time"`
	ScanInterval int `toml:"scan_interval"`

	MultisigAddress string   `toml:"multisig_address"`
	MultisigPubkeys []string `toml:"multisig_pubkeys"`
	// Required signatures of the UTXO multisig. Defaults to the byzantine threshold of the pubkeys.
	MultisigThreshold int    `toml:"multisig_threshold"`
	NativeSymbol      string `toml:"native_symbol"`
	NativeDecimals    int    `toml:"native_decimals"`
	BtcNetwork        string `toml:"btc_network"`

	DepositConfirmations  int64 `toml:"deposit_confirmations"`
	WithdrawConfirmations int64 `toml:"withdraw_confirmations"`
	MaxBlocksPerCycle     int64 `toml:"max_blocks_per_cycle"`
	HeaderKeep            int64 `toml:"header_keep"`

	// Durations below are in seconds.
	RpcStaleThreshold int `toml:"rpc_stale_threshold"`
	RoundInterval     int `toml:"round_interval"`
	MaxWait           int `toml:"max_wait"`
	FailedTimeout     int `toml:"failed_timeout"`
	ReceiptTimeout    int `toml:"receipt_timeout"`

	GasPriceStep          int64  `toml:"gas_price_step"`
	GasLimitWithdraw      uint64 `toml:"gas_limit_withdraw"`
	GasLimitErc20Withdraw uint64 `toml:"gas_limit_erc20_withdraw"`
	GasLimitChange        uint64 `toml:"gas_limit_change"`
	GasLimitUpgrade       uint64 `toml:"gas_limit_upgrade"`

	// Satoshi size of the change outputs on UTXO chains. 0 keeps a single change output.
	SplitGranularity int64 `toml:"split_granularity"`

	DenyTxs  []string       `toml:"deny_txs"`
	DelayTxs map[string]int `toml:"delay_txs"`
}

type Bridge struct {
	DbHost     string `toml:"db_host"`
	DbPort     int    `toml:"db_port"`
	DbUsername string `toml:"db_username"`
	DbPassword string `toml:"db_password"`
	DbSchema   string `toml:"db_schema"`
	InMemory   bool   `toml:"in_memory"`

	LevelDbPath   string `toml:"leveldb_path"`
	ServerPort    int    `toml:"server_port"`
	HomeServerUrl string `toml:"home_server_url"`
	MetricsPort   int    `toml:"metrics_port"`

	ResendLimit        int   `toml:"resend_limit"`
	DepositErrorLimit  int   `toml:"deposit_error_limit"`
	RollbackWindow     int64 `toml:"rollback_window"`
	RevalidateInterval int64 `toml:"revalidate_interval"`

	PriceProviders map[string]PriceProvider `toml:"price_providers"`
	Tokens         map[string]Token         `toml:"tokens"`

	Chains map[string]Chain `toml:"chains"`
}

// Load reads a toml config file and fills in default values.
func Load(path string) (*Bridge, error) {
	cfg := &Bridge{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DbPassword = password
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Normalize validates the config and sets default values for missing fields.
func (cfg *Bridge) Normalize() error {
	if cfg.ResendLimit == 0 {
		cfg.ResendLimit = 20
	}
	if cfg.DepositErrorLimit == 0 {
		cfg.DepositErrorLimit = 10
	}
	if cfg.RollbackWindow == 0 {
		cfg.RollbackWindow = 30
	}
	if cfg.RevalidateInterval == 0 {
		cfg.RevalidateInterval = 30
	}

	for name, chain := range cfg.Chains {
		if chain.Chain == "" {
			chain.Chain = name
		}
		chain.Family = strings.ToLower(chain.Family)
		if chain.Family != FamilyEth && chain.Family != FamilyBtc {
			return fmt.Errorf("unknown family %q for chain %s", chain.Family, name)
		}

		chain.normalize()
		cfg.Chains[name] = chain
	}

	return nil
}

func (c *Chain) normalize() {
	if c.BlockTime == 0 {
		c.BlockTime = 12_000
	}
	if c.ScanInterval == 0 {
		c.ScanInterval = c.BlockTime
	}
	if c.NativeDecimals == 0 {
		if c.Family == FamilyBtc {
			c.NativeDecimals = 8
		} else {
			c.NativeDecimals = 18
		}
	}
	if c.DepositConfirmations == 0 {
		c.DepositConfirmations = 30
	}
	if c.WithdrawConfirmations < c.DepositConfirmations {
		c.WithdrawConfirmations = c.DepositConfirmations + 5
	}
	if c.MaxBlocksPerCycle == 0 {
		c.MaxBlocksPerCycle = 100
	}
	if c.HeaderKeep == 0 {
		c.HeaderKeep = 1000
	}
	if c.RpcStaleThreshold == 0 {
		c.RpcStaleThreshold = 300
	}
	if c.RoundInterval == 0 {
		c.RoundInterval = 120
	}
	if c.MaxWait == 0 {
		c.MaxWait = 1800
	}
	if c.FailedTimeout == 0 {
		c.FailedTimeout = 600
	}
	if c.ReceiptTimeout == 0 {
		c.ReceiptTimeout = 300
	}
	if c.GasPriceStep == 0 {
		c.GasPriceStep = 1_000_000_000
	}
	if c.GasLimitWithdraw == 0 {
		c.GasLimitWithdraw = 150_000
	}
	if c.GasLimitErc20Withdraw == 0 {
		c.GasLimitErc20Withdraw = 250_000
	}
	if c.GasLimitChange == 0 {
		c.GasLimitChange = 400_000
	}
	if c.GasLimitUpgrade == 0 {
		c.GasLimitUpgrade = 200_000
	}
	if c.BtcNetwork == "" {
		c.BtcNetwork = "mainnet"
	}
	if c.MultisigThreshold == 0 && len(c.MultisigPubkeys) > 0 {
		c.MultisigThreshold = ByzantineThreshold(len(c.MultisigPubkeys))
	}
}

// ByzantineThreshold is the minimum number of signatures out of n members.
func ByzantineThreshold(n int) int {
	return n*66/100 + 1
}

func (c *Chain) ScanPeriod() time.Duration {
	return time.Duration(c.ScanInterval) * time.Millisecond
}

func (c *Chain) StaleThreshold() time.Duration {
	return time.Duration(c.RpcStaleThreshold) * time.Second
}

func (c *Chain) RoundPeriod() time.Duration {
	return time.Duration(c.RoundInterval) * time.Second
}

func (c *Chain) MaxWaitPeriod() time.Duration {
	return time.Duration(c.MaxWait) * time.Second
}

func (c *Chain) FailedTimeoutPeriod() time.Duration {
	return time.Duration(c.FailedTimeout) * time.Second
}

func (c *Chain) ReceiptTimeoutPeriod() time.Duration {
	return time.Duration(c.ReceiptTimeout) * time.Second
}

// IsDenied returns true if the tx hash is on the chain's deny list.
func (c *Chain) IsDenied(txHash string) bool {
	for _, hash := range c.DenyTxs {
		if strings.EqualFold(strings.TrimPrefix(hash, "0x"), strings.TrimPrefix(txHash, "0x")) {
			return true
		}
	}

	return false
}

// DelayRounds returns how many cycles a tx on the delay list must be skipped.
func (c *Chain) DelayRounds(txHash string) int {
	for hash, rounds := range c.DelayTxs {
		if strings.EqualFold(strings.TrimPrefix(hash, "0x"), strings.TrimPrefix(txHash, "0x")) {
			return rounds
		}
	}

	return 0
}
