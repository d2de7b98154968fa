package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func newTestCollector() *Collector {
	return NewCollector(prometheus.NewRegistry())
}

func TestMarkInCountsTotalPerformativeAndType(t *testing.T) {
	c := newTestCollector()
	c.MarkIn("REQUEST", "PING")
	c.MarkIn("REQUEST", "ASK")
	c.MarkIn("INFORM", "FACT")

	snap := c.Snapshot(false)
	assert.Equal(t, int64(3), snap["acl_in_total"])
	assert.Equal(t, int64(2), snap["acl_in_performative_REQUEST"])
	assert.Equal(t, int64(1), snap["acl_in_performative_INFORM"])
	assert.Equal(t, int64(1), snap["acl_in_type_PING"])
	assert.Equal(t, int64(1), snap["acl_in_type_ASK"])
	assert.Equal(t, int64(1), snap["acl_in_type_FACT"])
}

func TestMarkInSkipsTypeCounterForUntypedPayload(t *testing.T) {
	c := newTestCollector()
	c.MarkIn("INFORM", "")

	snap := c.Snapshot(false)
	assert.Equal(t, int64(1), snap["acl_in_total"])
	for name := range snap {
		assert.NotContains(t, name, "acl_in_type_")
	}
}

func TestMarkOutAndErrorCounters(t *testing.T) {
	c := newTestCollector()
	c.MarkOut("FAILURE", "ERROR")
	c.MarkValidationError()
	c.MarkBodyTooLarge()

	snap := c.Snapshot(false)
	assert.Equal(t, int64(1), snap["acl_out_total"])
	assert.Equal(t, int64(1), snap["acl_out_performative_FAILURE"])
	assert.Equal(t, int64(1), snap["acl_out_type_ERROR"])
	assert.Equal(t, int64(1), snap["acl_in_validation_errors_total"])
	assert.Equal(t, int64(1), snap["acl_in_body_too_large_total"])
}

func TestSnapshotReset(t *testing.T) {
	c := newTestCollector()
	c.MarkIn("REQUEST", "PING")

	first := c.Snapshot(true)
	assert.Equal(t, int64(1), first["acl_in_total"])

	second := c.Snapshot(false)
	assert.Empty(t, second)

	c.MarkIn("REQUEST", "PING")
	third := c.Snapshot(false)
	assert.Equal(t, int64(1), third["acl_in_total"])
}
