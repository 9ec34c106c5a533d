package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sisu-network/hbridge/chains"
	"github.com/sisu-network/hbridge/chains/btc"
	"github.com/sisu-network/hbridge/chains/eth"
	"github.com/sisu-network/hbridge/client"
	"github.com/sisu-network/hbridge/config"
	"github.com/sisu-network/hbridge/core"
	"github.com/sisu-network/hbridge/core/oracle"
	"github.com/sisu-network/hbridge/database"
	"github.com/sisu-network/hbridge/metrics"
	"github.com/sisu-network/hbridge/network"
	"github.com/sisu-network/hbridge/server"
	"github.com/sisu-network/lib/log"
)

func newChainParts(cfg config.Chain, db database.Database) (chains.Adapter, chains.Family) {
	switch cfg.Family {
	case config.FamilyEth:
		ethClient := eth.NewEthClients(cfg)
		ethClient.Start()

		signer, err := eth.NewKeySigner(os.Getenv("SIGNER_PRIVATE_KEY"))
		if err != nil {
			panic(err)
		}

		adapter := eth.NewAdapter(cfg, ethClient)
		return adapter, eth.NewFamily(cfg, adapter, signer)

	case config.FamilyBtc:
		adapter := btc.NewAdapter(cfg, btc.NewClient(cfg))
		family, err := btc.NewFamily(cfg, adapter, db)
		if err != nil {
			panic(err)
		}
		return adapter, family
	}

	log.Errorf("Unsupported family %s of chain %s", cfg.Family, cfg.Chain)
	return nil, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn("Cannot load .env file, err = ", err)
	}

	configPath := flag.String("config", "hbridge.toml", "path to the toml config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	db := database.NewDb(cfg)
	if err := db.Init(); err != nil {
		panic(err)
	}

	queueDb, err := database.OpenLevelDb(cfg.LevelDbPath)
	if err != nil {
		panic(err)
	}

	home := client.NewClient(cfg.HomeServerUrl)
	home.TryDial()

	var prices core.PriceSource = home
	if len(cfg.PriceProviders) > 0 {
		prices = oracle.NewTokenPriceManager(cfg.PriceProviders, cfg.Tokens, network.NewHttp())
	}

	m := metrics.NewMetrics(cfg.MetricsPort)
	m.Start()

	processor := core.NewProcessor()
	for _, chainCfg := range cfg.Chains {
		adapter, family := newChainParts(chainCfg, db)
		if adapter == nil {
			continue
		}

		processor.AddChain(core.NewChain(chainCfg, cfg, adapter, family, db, queueDb, home, prices, m))
	}
	processor.Start()

	s, err := server.NewServer(server.NewApi(processor), cfg.ServerPort)
	if err != nil {
		panic(err)
	}
	go func() {
		if err := s.Run(); err != nil {
			panic(err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Info("Shutting down...")
	s.Stop()
	processor.Stop()
	m.Stop()
	queueDb.Close()
	db.Close()
}
