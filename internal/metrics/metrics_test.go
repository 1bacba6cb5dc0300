// SPDX-License-Identifier: MIT

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// counterValue reads a labelled counter back through the default gatherer.
func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			for k, v := range labels {
				if !hasLabel(m, k, v) {
					continue metric
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func hasLabel(m *dto.Metric, key, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == key && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func TestCountersIncrement(t *testing.T) {
	before := counterValue(t, "xteam_queue_dropped_total", map[string]string{"reason": "displaced"})
	IncQueueDrop("displaced")
	IncQueueDrop("displaced")
	after := counterValue(t, "xteam_queue_dropped_total", map[string]string{"reason": "displaced"})
	require.Equal(t, before+2, after)

	before = counterValue(t, "xteam_auth_rejected_total", map[string]string{"reason": "expired"})
	IncAuthRejected("expired")
	after = counterValue(t, "xteam_auth_rejected_total", map[string]string{"reason": "expired"})
	require.Equal(t, before+1, after)

	before = counterValue(t, "xteam_events_published_total", map[string]string{"event_type": "agent_message"})
	IncEventPublished("agent_message")
	after = counterValue(t, "xteam_events_published_total", map[string]string{"event_type": "agent_message"})
	require.Equal(t, before+1, after)
}
