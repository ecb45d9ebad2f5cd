package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/campaign-automation/pkg/logger"
)

func TestRunner_PassContextOutlivesShutdownSignal(t *testing.T) {
	runner, err := NewRunner(nil, RunnerConfig{RulesSchedule: "@every 5m", AlertsSchedule: "@every 15m"}, logger.Discard())
	require.NoError(t, err)

	type traceKey struct{}
	signal, stop := context.WithCancel(context.WithValue(context.Background(), traceKey{}, "boot"))
	require.NoError(t, runner.Start(signal))

	stop()
	pass := runner.passContext()
	assert.NoError(t, pass.Err(), "a shutdown signal must not abort running passes")
	assert.Equal(t, "boot", pass.Value(traceKey{}))

	require.NoError(t, runner.Stop())
	assert.Error(t, pass.Err(), "Stop cancels passes once draining is over")
}
