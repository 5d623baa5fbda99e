package zyzzyva

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/bftsim/internal/sim"
)

// The client's self-addressed ClientTimeout becomes a timeout event; the
// forwarded request goes out as a broadcast.
func TestClientNodeSchedulesTimeout(t *testing.T) {
	n := NewNode(ClientID, 5, &recorder{}, zerolog.Nop())

	out := n.HandleEvent(sim.Reception{
		To:      ClientID,
		Message: ClientRequest{Operation: 7, SenderID: 31415},
	}, sim.Time(100))

	require.Len(t, out, 2)

	assert.Equal(t, sim.KindBroadcast, out[0].Kind)
	assert.Equal(t, 1, out[0].Broadcast.To)
	assert.Equal(t, sim.Time(105), out[0].Time)

	assert.Equal(t, sim.KindTimeout, out[1].Kind)
	assert.Equal(t, ClientID, out[1].Timeout.ClientID)
	assert.Equal(t, sim.Time(100), out[1].Time)
}

func TestPrimaryNodeBroadcastsOrdering(t *testing.T) {
	n := NewNode(1, 5, &recorder{}, zerolog.Nop())

	out := n.HandleEvent(sim.Reception{
		To:      1,
		Message: ClientRequest{Operation: 7, SenderID: ClientID},
	}, sim.Time(100))

	require.Len(t, out, 4)
	for _, e := range out {
		assert.Equal(t, sim.KindBroadcast, e.Kind)
		assert.Equal(t, sim.Time(105), e.Time)
	}
	assert.Equal(t, ClientID, out[0].Broadcast.To)
}
