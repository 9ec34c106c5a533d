package core

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sisu-network/hbridge/metrics"
	"github.com/stretchr/testify/require"
)

func TestProcessor_Chains(t *testing.T) {
	env := getTestEnv(t)

	p := NewProcessor()
	p.AddChain(env.chain)
	require.Len(t, p.tasks, 4)
	require.Len(t, p.Chains(), 1)

	c, err := p.GetChain("ganache1")
	require.Nil(t, err)
	require.Equal(t, env.chain, c)

	_, err = p.GetChain("unknown")
	require.NotNil(t, err)
}

func TestTask_Tick(t *testing.T) {
	env := getTestEnv(t)
	p := NewProcessor()

	calls := 0
	panicking := p.newTask(env.chain, "panicking", 0, func(ctx context.Context) error {
		calls++
		panic("boom")
	})
	require.NotPanics(t, panicking.tick)
	require.False(t, panicking.running.Load())

	failing := p.newTask(env.chain, "failing", 0, func(ctx context.Context) error {
		calls++
		return errors.New("rpc down")
	})
	failing.tick()
	require.Equal(t, 2, calls)

	taskErrors := env.chain.metrics.GetCounterVec(metrics.TaskError)
	require.Equal(t, float64(1), testutil.ToFloat64(taskErrors.WithLabelValues("ganache1", "panicking")))
	require.Equal(t, float64(1), testutil.ToFloat64(taskErrors.WithLabelValues("ganache1", "failing")))

	// A task never overlaps itself.
	failing.running.Store(true)
	failing.tick()
	require.Equal(t, 2, calls)
}
