package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/Ksmashhero06/smart-data-integration-portal/pkg/ledger"
)

func TestHub_DropsSlowSubscribers(t *testing.T) {
	hub := NewHub(zap.NewNop())
	slow := hub.subscribe()
	fast := hub.subscribe()

	for i := 0; i < subscriberSize; i++ {
		hub.Publish(BlockEvent{Type: "block_appended", Block: ledger.Block{Index: i}})
		<-fast
	}
	assert.Equal(t, 2, hub.Subscribers())

	hub.Publish(BlockEvent{Type: "block_appended"})
	assert.Equal(t, 1, hub.Subscribers())

	drained := 0
	for range slow {
		drained++
	}
	assert.Equal(t, subscriberSize, drained, "buffered events are still delivered before close")

	hub.unsubscribe(slow)
	hub.unsubscribe(fast)
	assert.Equal(t, 0, hub.Subscribers())
}
