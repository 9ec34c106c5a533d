package database

import (
	"testing"

	"github.com/sisu-network/hbridge/types"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

func TestQueue_OfferIsIdempotent(t *testing.T) {
	db, err := OpenLevelDb("")
	require.Nil(t, err)
	defer db.Close()

	q := NewQueue[types.UnconfirmedTx](db, "ganache1", "unconfirmed")
	require.Nil(t, q.Load())

	require.Nil(t, q.Offer("a", &types.UnconfirmedTx{TxHash: "a"}))
	require.Nil(t, q.Offer("b", &types.UnconfirmedTx{TxHash: "b"}))
	require.Nil(t, q.Offer("a", &types.UnconfirmedTx{TxHash: "a", SkipRounds: 3}))
	require.Equal(t, 2, q.Len())

	items, err := q.Items()
	require.Nil(t, err)
	require.Equal(t, "a", items[0].TxHash)
	require.Equal(t, 3, items[0].SkipRounds)
	require.Equal(t, "b", items[1].TxHash)

	// Items are copies.
	items[0].SkipRounds = 10
	item, err := q.Get("a")
	require.Nil(t, err)
	require.Equal(t, 3, item.SkipRounds)

	item, err = q.Get("missing")
	require.Nil(t, err)
	require.Nil(t, item)
}

func TestQueue_Reload(t *testing.T) {
	stor := storage.NewMemStorage()
	db, err := leveldb.Open(stor, nil)
	require.Nil(t, err)

	q := NewQueue[types.WaitingTx](db, "ganache1", "waiting")
	other := NewQueue[types.WaitingTx](db, "ganache2", "waiting")
	require.Nil(t, q.Load())
	require.Nil(t, q.Offer("n1", &types.WaitingTx{NerveTxHash: "n1"}))
	require.Nil(t, q.Offer("n2", &types.WaitingTx{NerveTxHash: "n2", ThisNodeOrder: 2}))
	require.Nil(t, other.Offer("n3", &types.WaitingTx{NerveTxHash: "n3"}))
	require.Nil(t, q.Remove("n1"))
	require.Nil(t, db.Close())

	db, err = leveldb.Open(stor, nil)
	require.Nil(t, err)
	defer db.Close()

	q = NewQueue[types.WaitingTx](db, "ganache1", "waiting")
	select {
	case <-q.Ready():
		t.Fatal("queue must not be ready before loading")
	default:
	}

	require.Nil(t, q.Load())
	<-q.Ready()

	require.Equal(t, []string{"n2"}, q.Keys())
	item, err := q.Get("n2")
	require.Nil(t, err)
	require.Equal(t, 2, item.ThisNodeOrder)

	// New items go after the reloaded ones.
	require.Nil(t, q.Offer("n0", &types.WaitingTx{NerveTxHash: "n0"}))
	require.Equal(t, []string{"n2", "n0"}, q.Keys())
}

func TestQueue_RemoveIf(t *testing.T) {
	db, err := OpenLevelDb("")
	require.Nil(t, err)
	defer db.Close()

	q := NewQueue[types.UnconfirmedTx](db, "ganache1", "unconfirmed")
	require.Nil(t, q.Load())
	require.Nil(t, q.Offer("a", &types.UnconfirmedTx{TxHash: "a", TxType: types.TxTypeChange}))
	require.Nil(t, q.Offer("b", &types.UnconfirmedTx{TxHash: "b", TxType: types.TxTypeDeposit}))
	require.Nil(t, q.Offer("c", &types.UnconfirmedTx{TxHash: "c", TxType: types.TxTypeChange}))

	count, err := q.RemoveIf(func(tx *types.UnconfirmedTx) bool {
		return tx.TxType == types.TxTypeChange
	})
	require.Nil(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, []string{"b"}, q.Keys())
	require.True(t, q.Contains("b"))
	require.False(t, q.Contains("a"))
}
