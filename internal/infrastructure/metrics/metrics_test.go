package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestDefaultMetrics_Initialized(t *testing.T) {
	require.NotNil(t, DefaultMetrics)
	require.Same(t, DefaultMetrics, GetDefaultMetrics())
	require.NotNil(t, DefaultMetrics.CommandsTotal)
	require.NotNil(t, DefaultMetrics.BroadcastCycles)
	require.NotNil(t, DefaultMetrics.KafkaProduceErrors)
}

func TestMetrics_RecordBroadcastCycle(t *testing.T) {
	sentBefore := testutil.ToFloat64(DefaultMetrics.BroadcastMessagesSent)
	cyclesBefore := testutil.ToFloat64(DefaultMetrics.BroadcastCycles)

	DefaultMetrics.RecordBroadcastCycle(3, 1, 0)
	// negative values are ignored
	DefaultMetrics.RecordBroadcastCycle(-1, 0, 0)

	require.Equal(t, sentBefore+3, testutil.ToFloat64(DefaultMetrics.BroadcastMessagesSent))
	require.Equal(t, cyclesBefore+2, testutil.ToFloat64(DefaultMetrics.BroadcastCycles))
}

func TestMetrics_RecordCommandError(t *testing.T) {
	DefaultMetrics.RecordCommandError("hastle", "validation")
	DefaultMetrics.RecordCommandError("hastle", "")

	require.Equal(t, float64(1), testutil.ToFloat64(DefaultMetrics.CommandErrors.WithLabelValues("hastle", "unknown")))
}

func TestMetrics_RecordStatePersist(t *testing.T) {
	okBefore := testutil.ToFloat64(DefaultMetrics.StatePersists)
	errBefore := testutil.ToFloat64(DefaultMetrics.StatePersistErrors)

	DefaultMetrics.RecordStatePersist(nil)
	DefaultMetrics.RecordStatePersist(errors.New("disk full"))

	require.Equal(t, okBefore+1, testutil.ToFloat64(DefaultMetrics.StatePersists))
	require.Equal(t, errBefore+1, testutil.ToFloat64(DefaultMetrics.StatePersistErrors))
}

func TestMetrics_Gauges(t *testing.T) {
	DefaultMetrics.UpdateAccounts(3, 5)
	DefaultMetrics.UpdateAutomations(2, 4)

	require.Equal(t, float64(3), testutil.ToFloat64(DefaultMetrics.ActiveAccounts))
	require.Equal(t, float64(5), testutil.ToFloat64(DefaultMetrics.TotalAccounts))
	require.Equal(t, float64(2), testutil.ToFloat64(DefaultMetrics.ActiveBroadcasts))
	require.Equal(t, float64(4), testutil.ToFloat64(DefaultMetrics.ActiveChatSpams))
}

func TestMetrics_NoPanics(t *testing.T) {
	DefaultMetrics.RecordCommand("ping")
	DefaultMetrics.RecordSpamSent()
	DefaultMetrics.RecordSpamFailure()
	DefaultMetrics.RecordAutoReply()
	DefaultMetrics.RecordAccountReconnection()
	DefaultMetrics.RecordAccountRateLimit(12)
	DefaultMetrics.RecordKafkaMessage(0.01)
	DefaultMetrics.RecordKafkaError("")
}
