package sim

// Node is the handler contract every simulated node implements.
//
// HandleEvent is invoked by the scheduler when a reception event addressed
// to the node is popped. The returned events may be broadcasts (which the
// scheduler routes through the network model), receptions, or timeouts; nil
// means the node has nothing to emit. Handlers must derive all timing from
// now — never from the wall clock — and must not touch state owned by other
// nodes.
type Node interface {
	HandleEvent(r Reception, now Time) []Event
}

// NetworkModel turns a broadcast into a delayed reception, or drops it.
// ok=false means the message was omitted.
type NetworkModel interface {
	HandleBroadcast(now Time, b Broadcast) (Event, bool)
}

// ResultLogger is the per-run result stream sink. Records carry the virtual
// timestamp, the emitting node id (-1 for the scheduler itself) and a
// preformatted "<op>;<phase>" payload.
type ResultLogger interface {
	Record(timeMillis uint64, nodeID int, message string)
}
