package sim

// RequestBatchConfig describes one batch of client requests to inject:
// Number requests spaced Interval milliseconds apart.
type RequestBatchConfig struct {
	Number   uint32
	Interval uint32
}

// createEvents materializes the batch into reception events under the
// scheduler's clock. The i-th request lands at now + (i-1)*Interval, each
// carrying a fresh operation id drawn from the monotonic counter. Requests
// are addressed to the protocol's ingress node (the PBFT primary, or the
// Zyzzyva client).
func (c RequestBatchConfig) createEvents(counter *uint64, now Time, target int, newRequest func(op uint64) Message) []Event {
	events := make([]Event, 0, c.Number)
	for i := uint32(1); i <= c.Number; i++ {
		op := *counter
		*counter++
		at := now.Add(uint64(i-1) * uint64(c.Interval))
		events = append(events, NewReception(target, newRequest(op), at))
	}
	return events
}
