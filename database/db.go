package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate"
	"github.com/golang-migrate/migrate/database/mysql"
	_ "github.com/golang-migrate/migrate/source/file"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sisu-network/hbridge/config"
	"github.com/sisu-network/hbridge/types"
	"github.com/sisu-network/lib/log"
)

type Database interface {
	Init() error
	Close() error

	// Local headers
	SaveHeader(chain string, header *types.Header) error
	GetLatestHeader(chain string) (*types.Header, error)
	DeleteHeader(chain string, height int64) error
	PruneHeaders(chain string, belowHeight int64) error

	// Tx relations
	SaveTx(chain string, tx *types.StoredTx) error
	GetTx(chain, txHash string) (*types.StoredTx, error)
	GetTxsByNerveHash(chain, nerveTxHash string) ([]*types.StoredTx, error)

	// Txs sent by this node
	SaveSentTx(chain string, record *types.SentTxRecord) error
	GetSentTx(chain, nerveTxHash string) (*types.SentTxRecord, error)
	DeleteSentTx(chain, nerveTxHash string) error

	// Multisig history
	SaveMultisigAddress(chain, address string, height int64) error
	LoadMultisigAddresses(chain string) ([]string, error)
}

type DefaultDatabase struct {
	cfg *config.Bridge
	db  *sql.DB
}

type dbLogger struct {
}

func (loggger *dbLogger) Printf(format string, v ...interface{}) {
	log.Verbosef(format, v...)
}

func (loggger *dbLogger) Verbose() bool {
	return true
}

func NewDb(cfg *config.Bridge) Database {
	return &DefaultDatabase{
		cfg: cfg,
	}
}

func (d *DefaultDatabase) Connect() error {
	host := d.cfg.DbHost
	if host == "" {
		return fmt.Errorf("DB host cannot be empty")
	}

	port := d.cfg.DbPort
	username := d.cfg.DbUsername
	password := d.cfg.DbPassword
	schema := d.cfg.DbSchema

	// Connect to the db
	url := fmt.Sprintf("%s:%s@tcp(%s:%d)/", username, password, host, port)
	database, err := sql.Open("mysql", url)
	if err != nil {
		return err
	}
	_, err = database.Exec("CREATE DATABASE IF NOT EXISTS " + schema)
	if err != nil {
		return err
	}
	database.Close()

	database, err = sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?multiStatements=true",
		username, password, host, port, schema))
	if err != nil {
		return err
	}

	d.db = database
	log.Info("Db is connected successfully")
	return nil
}

func (d *DefaultDatabase) DoMigration() error {
	driver, err := mysql.WithInstance(d.db, &mysql.Config{})
	if err != nil {
		return err
	}

	dir, err := MigrationsTempDir()
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	m, err := migrate.NewWithDatabaseInstance(
		"file://"+dir,
		"mysql",
		driver,
	)
	if err != nil {
		return err
	}

	m.Log = &dbLogger{}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}

	return nil
}

// connectInMemory opens a sqlite database in memory and applies the migrations directly. It is
// used for tests and single node development setups.
func (d *DefaultDatabase) connectInMemory() error {
	database, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return err
	}
	// Every connection of sqlite in memory is a different database.
	database.SetMaxOpenConns(1)

	mFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	files, err := fs.Glob(mFS, "*.up.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := fs.ReadFile(mFS, file)
		if err != nil {
			return err
		}

		if _, err := database.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	d.db = database
	return nil
}

func (d *DefaultDatabase) Init() error {
	if d.cfg.InMemory {
		return d.connectInMemory()
	}

	err := d.Connect()
	if err != nil {
		log.Error("Failed to connect to DB. Err =", err)
		return err
	}

	return d.DoMigration()
}

func (d *DefaultDatabase) Close() error {
	if d.db == nil {
		return nil
	}

	return d.db.Close()
}

func (d *DefaultDatabase) SaveHeader(chain string, header *types.Header) error {
	_, err := d.db.Exec("REPLACE INTO headers (chain, height, hash, parent_hash, block_time) VALUES (?, ?, ?, ?, ?)",
		chain, header.Height, header.Hash, header.ParentHash, header.Time)

	return err
}

func (d *DefaultDatabase) GetLatestHeader(chain string) (*types.Header, error) {
	rows, err := d.db.Query("SELECT height, hash, parent_hash, block_time FROM headers WHERE chain = ? ORDER BY height DESC LIMIT 1", chain)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	header := &types.Header{}
	if err := rows.Scan(&header.Height, &header.Hash, &header.ParentHash, &header.Time); err != nil {
		return nil, err
	}

	return header, nil
}

func (d *DefaultDatabase) DeleteHeader(chain string, height int64) error {
	_, err := d.db.Exec("DELETE FROM headers WHERE chain = ? AND height = ?", chain, height)
	return err
}

func (d *DefaultDatabase) PruneHeaders(chain string, belowHeight int64) error {
	_, err := d.db.Exec("DELETE FROM headers WHERE chain = ? AND height < ?", chain, belowHeight)
	return err
}

func (d *DefaultDatabase) SaveTx(chain string, tx *types.StoredTx) error {
	_, err := d.db.Exec("REPLACE INTO tx_relations (chain, tx_hash, nerve_tx_hash, tx_type, block_height, status) VALUES (?, ?, ?, ?, ?, ?)",
		chain, types.NormalizeHash(tx.TxHash), types.NormalizeHash(tx.NerveTxHash), int(tx.TxType), tx.BlockHeight, int(tx.Status))

	return err
}

func (d *DefaultDatabase) GetTx(chain, txHash string) (*types.StoredTx, error) {
	txs, err := d.queryTxs("SELECT tx_hash, nerve_tx_hash, tx_type, block_height, status FROM tx_relations WHERE chain = ? AND tx_hash = ?",
		chain, types.NormalizeHash(txHash))
	if err != nil || len(txs) == 0 {
		return nil, err
	}

	return txs[0], nil
}

func (d *DefaultDatabase) GetTxsByNerveHash(chain, nerveTxHash string) ([]*types.StoredTx, error) {
	return d.queryTxs("SELECT tx_hash, nerve_tx_hash, tx_type, block_height, status FROM tx_relations WHERE chain = ? AND nerve_tx_hash = ?",
		chain, types.NormalizeHash(nerveTxHash))
}

func (d *DefaultDatabase) queryTxs(query string, args ...interface{}) ([]*types.StoredTx, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*types.StoredTx, 0)
	for rows.Next() {
		var txType, status int
		tx := &types.StoredTx{}
		if err := rows.Scan(&tx.TxHash, &tx.NerveTxHash, &txType, &tx.BlockHeight, &status); err != nil {
			return nil, err
		}
		tx.TxType = types.TxType(txType)
		tx.Status = types.TxStatus(status)

		ret = append(ret, tx)
	}

	return ret, rows.Err()
}

func (d *DefaultDatabase) SaveSentTx(chain string, record *types.SentTxRecord) error {
	bz, err := json.Marshal(record)
	if err != nil {
		return err
	}

	_, err = d.db.Exec("REPLACE INTO sent_txs (chain, nerve_tx_hash, tx_hash, record) VALUES (?, ?, ?, ?)",
		chain, types.NormalizeHash(record.NerveTxHash), types.NormalizeHash(record.TxHash), string(bz))

	return err
}

func (d *DefaultDatabase) GetSentTx(chain, nerveTxHash string) (*types.SentTxRecord, error) {
	rows, err := d.db.Query("SELECT record FROM sent_txs WHERE chain = ? AND nerve_tx_hash = ?",
		chain, types.NormalizeHash(nerveTxHash))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	var s string
	if err := rows.Scan(&s); err != nil {
		return nil, err
	}

	record := &types.SentTxRecord{}
	if err := json.Unmarshal([]byte(s), record); err != nil {
		return nil, err
	}

	return record, nil
}

func (d *DefaultDatabase) DeleteSentTx(chain, nerveTxHash string) error {
	_, err := d.db.Exec("DELETE FROM sent_txs WHERE chain = ? AND nerve_tx_hash = ?", chain, types.NormalizeHash(nerveTxHash))
	return err
}

func (d *DefaultDatabase) SaveMultisigAddress(chain, address string, height int64) error {
	_, err := d.db.Exec("REPLACE INTO multisig_history (chain, address, block_height) VALUES (?, ?, ?)",
		chain, strings.ToLower(address), height)
	if err != nil {
		log.Errorf("cannot insert multisig address %s for chain %s, err = %v", address, chain, err)
	}

	return err
}

func (d *DefaultDatabase) LoadMultisigAddresses(chain string) ([]string, error) {
	rows, err := d.db.Query("SELECT address FROM multisig_history WHERE chain = ? ORDER BY block_height", chain)
	if err != nil {
		log.Error("Failed to load multisig addresses for chain", chain, ". Error = ", err)
		return nil, err
	}
	defer rows.Close()

	addrs := make([]string, 0)
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err == nil {
			addrs = append(addrs, addr)
		}
	}

	return addrs, nil
}
