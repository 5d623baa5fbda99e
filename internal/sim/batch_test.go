package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type opMessage struct {
	op uint64
}

func (opMessage) Protocol() Protocol { return ProtocolDummy }

func TestBatchCreatesSpacedReceptions(t *testing.T) {
	counter := uint64(1)
	batch := RequestBatchConfig{Number: 3, Interval: 250}

	events := batch.createEvents(&counter, Time(1000), 7, func(op uint64) Message {
		return opMessage{op: op}
	})

	require.Len(t, events, 3)
	assert.Equal(t, uint64(4), counter)

	for i, e := range events {
		assert.Equal(t, KindReception, e.Kind)
		assert.Equal(t, 7, e.Reception.To)
		assert.Equal(t, Time(1000+uint64(i)*250), e.Time)
		assert.Equal(t, uint64(i+1), e.Reception.Message.(opMessage).op)
	}
}

func TestBatchCounterContinuesAcrossBatches(t *testing.T) {
	counter := uint64(1)
	batch := RequestBatchConfig{Number: 2, Interval: 10}
	newRequest := func(op uint64) Message { return opMessage{op: op} }

	batch.createEvents(&counter, Time(0), 1, newRequest)
	events := batch.createEvents(&counter, Time(500), 1, newRequest)

	require.Len(t, events, 2)
	assert.Equal(t, uint64(3), events[0].Reception.Message.(opMessage).op)
	assert.Equal(t, uint64(4), events[1].Reception.Message.(opMessage).op)
}
