package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"text/template"

	"github.com/BurntSushi/toml"
	"github.com/sisu-network/hbridge/config"

	"github.com/stretchr/testify/require"
)

func TestConfigTomlUnmarshal(t *testing.T) {
	s := `
db_host = "localhost"
in_memory = true
resend_limit = 5

[chains]
	[chains.ganache1]
	family = "eth"
	chain_id = 189985
	rpcs = ["http://localhost:7545"]
	multisig_address = "0x1111111111111111111111111111111111111111"
	deny_txs = ["0xabc"]

	[chains.ganache1.delay_txs]
	"0xdef" = 3

	[chains.btc-testnet]
	family = "BTC"
	split_granularity = 10000000
`
	cfg := &config.Bridge{}
	_, err := toml.Decode(s, cfg)
	require.Nil(t, err)
	require.Nil(t, cfg.Normalize())

	require.Equal(t, 2, len(cfg.Chains))
	require.Equal(t, 5, cfg.ResendLimit)
	require.Equal(t, 10, cfg.DepositErrorLimit)
	require.Equal(t, int64(30), cfg.RollbackWindow)

	eth := cfg.Chains["ganache1"]
	require.Equal(t, "ganache1", eth.Chain)
	require.Equal(t, 18, eth.NativeDecimals)
	require.True(t, eth.WithdrawConfirmations >= eth.DepositConfirmations)
	require.True(t, eth.IsDenied("ABC"))
	require.False(t, eth.IsDenied("0xabd"))
	require.Equal(t, 3, eth.DelayRounds("def"))

	btc := cfg.Chains["btc-testnet"]
	require.Equal(t, config.FamilyBtc, btc.Family)
	require.Equal(t, 8, btc.NativeDecimals)
	require.Equal(t, int64(10000000), btc.SplitGranularity)
}

func TestConfigUnknownFamily(t *testing.T) {
	cfg := &config.Bridge{
		Chains: map[string]config.Chain{
			"solana": {Family: "sol"},
		},
	}

	require.NotNil(t, cfg.Normalize())
}

func TestConfigTemplate(t *testing.T) {
	cfg := config.Bridge{
		DbHost:            "127.0.0.1",
		DbPort:            3306,
		DbSchema:          "hbridge",
		ResendLimit:       20,
		DepositErrorLimit: 10,
		RollbackWindow:    30,
		Chains: map[string]config.Chain{
			"ganache1": {
				Family:    "eth",
				ChainId:   189985,
				BlockTime: 1000,
				Rpcs:      []string{"http://localhost:7545", "http://localhost:7546"},
			},
		},
	}

	tmpl, err := template.New("config").Parse(config.BridgeConfigTemplate)
	require.Nil(t, err)

	var buf bytes.Buffer
	require.Nil(t, tmpl.Execute(&buf, cfg))

	path := filepath.Join(t.TempDir(), "hbridge.toml")
	require.Nil(t, os.WriteFile(path, buf.Bytes(), 0600))

	loaded, err := config.Load(path)
	require.Nil(t, err)
	require.Equal(t, []string{"http://localhost:7545", "http://localhost:7546"}, loaded.Chains["ganache1"].Rpcs)
	require.Equal(t, "ganache1", loaded.Chains["ganache1"].Chain)
}
