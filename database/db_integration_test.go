package database

import (
	"testing"

	"github.com/sisu-network/hbridge/config"
	"github.com/sisu-network/hbridge/types"
	"github.com/stretchr/testify/suite"
)

type IntegrationDbSuite struct {
	suite.Suite
	db Database
}

func (suite *IntegrationDbSuite) SetupTest() {
	cfg := config.Bridge{
		DbHost:     "localhost",
		DbPort:     3306,
		DbUsername: "root",
		DbPassword: "password",
		DbSchema:   "hbridge_test",
	}

	suite.db = NewDb(&cfg)
	suite.Require().Nil(suite.db.Init())

	d := suite.db.(*DefaultDatabase)
	for _, table := range []string{"headers", "tx_relations", "sent_txs", "multisig_history"} {
		d.db.Exec("DELETE FROM " + table)
	}
}

func (suite *IntegrationDbSuite) TearDownTest() {
	suite.db.Close()
}

func (suite *IntegrationDbSuite) TestHeaders() {
	suite.Require().Nil(suite.db.SaveHeader("eth", &types.Header{Height: 1, Hash: "h1"}))
	header, err := suite.db.GetLatestHeader("eth")
	suite.Require().Nil(err)
	suite.Require().Equal("h1", header.Hash)
}

func (suite *IntegrationDbSuite) TestTxRelations() {
	suite.Require().Nil(suite.db.SaveTx("eth", &types.StoredTx{TxHash: "aa", NerveTxHash: "bb"}))
	tx, err := suite.db.GetTx("eth", "aa")
	suite.Require().Nil(err)
	suite.Require().Equal("bb", tx.NerveTxHash)
}

func TestIntegrationDb(t *testing.T) {
	t.Skip()

	suite.Run(t, new(IntegrationDbSuite))
}
