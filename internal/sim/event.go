package sim

import "fmt"

// Protocol identifies the message family a protocol message belongs to.
type Protocol int

const (
	ProtocolDummy Protocol = iota
	ProtocolPBFT
	ProtocolZyzzyva
)

func (p Protocol) String() string {
	switch p {
	case ProtocolDummy:
		return "dummy"
	case ProtocolPBFT:
		return "pbft"
	case ProtocolZyzzyva:
		return "zyzzyva"
	default:
		return fmt.Sprintf("protocol(%d)", int(p))
	}
}

// Message is implemented by every protocol message carried through the
// simulation. Concrete message types live with their protocol packages;
// the simulation core never inspects anything beyond the family tag.
//
// Message values must be plain value types: nodes store them in map-backed
// quorum sets and rely on Go's structural equality for deduplication.
type Message interface {
	Protocol() Protocol
}

// DummyMessage is the payload exchanged by dummy nodes. It carries no data.
type DummyMessage struct{}

func (DummyMessage) Protocol() Protocol { return ProtocolDummy }

// EventKind tags the variants of Event.
type EventKind int

const (
	KindAdmin EventKind = iota
	KindBroadcast
	KindReception
	KindTimeout
	// KindNetwork is reserved for future network-level events (e.g. partition
	// schedules). The scheduler warns and skips it.
	KindNetwork
)

func (k EventKind) String() string {
	switch k {
	case KindAdmin:
		return "admin"
	case KindBroadcast:
		return "broadcast"
	case KindReception:
		return "reception"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// AdminKind tags administrative events fed in through the external channel.
type AdminKind int

const (
	// AdminStop terminates the run at the next scheduler iteration.
	AdminStop AdminKind = iota
	// AdminClientRequests materializes a batch of client requests.
	AdminClientRequests
)

// AdminEvent is the only event family an external caller may inject.
// The typed channel makes anything else unrepresentable.
type AdminEvent struct {
	Kind  AdminKind
	Batch RequestBatchConfig // valid when Kind == AdminClientRequests
}

// Broadcast is a message handed to the network model for delivery.
type Broadcast struct {
	From    int
	To      int
	Message Message
}

// Reception is a message arriving at a node.
type Reception struct {
	To      int
	Message Message
}

// Timeout asks the scheduler to re-deliver Message to ClientID after the
// configured client timeout has elapsed in virtual time.
type Timeout struct {
	ClientID int
	Message  Message
}

// Event is the unit of work on the simulation queue: a timestamp plus one of
// the tagged payloads. Exactly the field selected by Kind is meaningful.
//
// Ordering contract (enforced by the queue, not by Event itself): admin
// events pop before everything else regardless of time; all other events pop
// in ascending Time order, ties broken by insertion order.
type Event struct {
	Time Time
	Kind EventKind

	Admin     AdminEvent
	Broadcast Broadcast
	Reception Reception
	Timeout   Timeout
}

// NewAdminStop builds the administrative stop event.
func NewAdminStop() Event {
	return Event{Kind: KindAdmin, Admin: AdminEvent{Kind: AdminStop}}
}

// NewAdminRequests builds an administrative event carrying a request batch.
func NewAdminRequests(batch RequestBatchConfig) Event {
	return Event{Kind: KindAdmin, Admin: AdminEvent{Kind: AdminClientRequests, Batch: batch}}
}

// NewBroadcast builds a broadcast event due at the given time.
func NewBroadcast(from, to int, msg Message, at Time) Event {
	return Event{Time: at, Kind: KindBroadcast, Broadcast: Broadcast{From: from, To: to, Message: msg}}
}

// NewReception builds a reception event due at the given time.
func NewReception(to int, msg Message, at Time) Event {
	return Event{Time: at, Kind: KindReception, Reception: Reception{To: to, Message: msg}}
}

// NewTimeout builds a timeout event due at the given time.
func NewTimeout(clientID int, msg Message, at Time) Event {
	return Event{Time: at, Kind: KindTimeout, Timeout: Timeout{ClientID: clientID, Message: msg}}
}
