// Package pbft implements the replica state machine for the PBFT three-phase
// agreement path (pre-prepare, prepare, commit) under a stable primary.
// View changes and checkpointing are not modelled.
package pbft

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/adred-codev/bftsim/internal/monitoring"
	"github.com/adred-codev/bftsim/internal/sim"
)

const initialView = 1

// delivery is one outgoing message and its recipient, produced by the state
// machine and turned into broadcast events by the hosting node.
type delivery struct {
	to  int
	msg sim.Message
}

// broadcastToPeers fans msg out to every peer.
func broadcastToPeers(msg sim.Message, peers []int) []delivery {
	out := make([]delivery, 0, len(peers))
	for _, id := range peers {
		out = append(out, delivery{to: id, msg: msg})
	}
	return out
}

// Role is the replica's role in the cluster.
type Role int

const (
	Primary Role = iota
	Backup
)

// logEntry stores everything the protocol tracks for one in-flight request:
// the ordering assigned by the primary, the original request, and the two
// quorum sets.
//
// prepareQuorum holds the at-most-one PrePrepare plus the Prepare votes;
// commitQuorum holds Commit votes. Map-backed sets make duplicate votes from
// the same sender idempotent.
type logEntry struct {
	view uint64
	seq  uint64
	req  ClientRequest

	prepareQuorum map[sim.Message]struct{}
	commitQuorum  map[Commit]struct{}

	// Both predicates are monotonic: once true they never revert.
	prepared       bool
	committedLocal bool
}

func newLogEntry(view, seq uint64, req ClientRequest) *logEntry {
	return &logEntry{
		view:          view,
		seq:           seq,
		req:           req,
		prepareQuorum: make(map[sim.Message]struct{}),
		commitQuorum:  make(map[Commit]struct{}),
	}
}

func (e *logEntry) hasCommitQuorumOf(quorum int) bool {
	return len(e.commitQuorum) >= quorum
}

// hasPrepareQuorumOf requires the PrePrepare itself to be present: 2f+1
// Prepare votes alone never prepare an entry.
func (e *logEntry) hasPrepareQuorumOf(quorum int) bool {
	return e.hasPrePrepare() && len(e.prepareQuorum) >= quorum
}

func (e *logEntry) hasPrePrepare() bool {
	for msg := range e.prepareQuorum {
		if _, ok := msg.(PrePrepare); ok {
			return true
		}
	}
	return false
}

// ReplicaState is the per-replica protocol state: the request log keyed by
// operation id, the committed-request set used for garbage collection, and
// the cluster parameters.
type ReplicaState struct {
	id         int
	numOfNodes int
	view       uint64
	nextSeq    uint64
	role       Role
	peers      []int
	quorumSize int

	log       map[uint64]*logEntry
	committed map[uint64]struct{}

	results sim.ResultLogger
	logger  zerolog.Logger
}

// NewReplicaState builds the state for one replica. The replica whose id
// equals initialView mod n is the primary. Panics below the 3f+1 = 4 node
// minimum; the cluster cannot tolerate a single fault under that.
func NewReplicaState(id, numOfNodes int, results sim.ResultLogger, logger zerolog.Logger) *ReplicaState {
	if numOfNodes < 4 {
		panic(fmt.Sprintf("pbft: need at least 4 nodes but got %d", numOfNodes))
	}

	f := (numOfNodes - 1) / 3

	role := Backup
	if id == initialView%numOfNodes {
		role = Primary
	}

	peers := make([]int, 0, numOfNodes-1)
	for i := 1; i <= numOfNodes; i++ {
		if i != id {
			peers = append(peers, i)
		}
	}

	return &ReplicaState{
		id:         id,
		numOfNodes: numOfNodes,
		view:       initialView,
		role:       role,
		peers:      peers,
		quorumSize: 2*f + 1,
		log:        make(map[uint64]*logEntry),
		committed:  make(map[uint64]struct{}),
		results:    results,
		logger:     logger,
	}
}

// handleMessage is the single entry point for incoming protocol messages.
func (s *ReplicaState) handleMessage(msg sim.Message, now sim.Time) []delivery {
	if s.canIgnore(msg) {
		s.logger.Debug().Int("node", s.id).Msg("dropping message for committed request")
		return nil
	}

	switch m := msg.(type) {
	case ClientRequest:
		return s.handleClientRequest(m, now)
	case PrePrepare:
		return s.handlePrePrepare(m, now)
	case Prepare:
		return s.handlePrepare(m, now)
	case Commit:
		return s.handleCommit(m, now)
	case ClientResponse:
		panic(fmt.Sprintf("pbft: replica %d received a ClientResponse", s.id))
	default:
		panic(fmt.Sprintf("pbft: replica %d received a non-PBFT message %T", s.id, msg))
	}
}

func (s *ReplicaState) currPrimary() int {
	return int(s.view % uint64(s.numOfNodes))
}

func (s *ReplicaState) isPrimary() bool {
	return s.role == Primary
}

func (s *ReplicaState) nextSeqNum() uint64 {
	s.nextSeq++
	return s.nextSeq
}

// canIgnore reports whether msg refers to a request this replica already
// committed locally. Only Prepare and Commit are dropped that way; a stale
// PrePrepare would indicate a broken primary and should surface.
func (s *ReplicaState) canIgnore(msg sim.Message) bool {
	switch m := msg.(type) {
	case Prepare:
		_, ok := s.committed[m.Req.Operation]
		return ok
	case Commit:
		_, ok := s.committed[m.Req.Operation]
		return ok
	default:
		return false
	}
}

// updatePredicates runs after every quorum-set mutation and drives both
// protocol transitions in order. The entry must exist.
func (s *ReplicaState) updatePredicates(op uint64, output []delivery, now sim.Time) []delivery {
	entry := s.log[op]

	if !entry.prepared && entry.hasPrepareQuorumOf(s.quorumSize) {
		s.results.Record(now.Millis(), s.id, fmt.Sprintf("%d;prepared", entry.req.Operation))
		entry.prepared = true

		commit := Commit{Req: entry.req, View: entry.view, Seq: entry.seq, SenderID: s.id}
		// Count the own vote before broadcasting.
		entry.commitQuorum[commit] = struct{}{}

		output = append(output, broadcastToPeers(commit, s.peers)...)
	}

	if entry.prepared && !entry.committedLocal && entry.hasCommitQuorumOf(s.quorumSize) {
		s.results.Record(now.Millis(), s.id, fmt.Sprintf("%d;committed_local", entry.req.Operation))
		entry.committedLocal = true
		monitoring.RecordCommit("pbft")

		// The entry is final: drop it from the log and remember the
		// operation so late votes cannot resurrect it.
		delete(s.log, op)
		s.committed[op] = struct{}{}
	}

	return output
}

// handleClientRequest assigns the next sequence number and opens agreement.
// Only the primary accepts client requests.
func (s *ReplicaState) handleClientRequest(msg ClientRequest, now sim.Time) []delivery {
	if !s.isPrimary() {
		s.logger.Warn().Int("node", s.id).Msg("non-primary replica received a client request")
		return nil
	}

	s.results.Record(now.Millis(), s.id, fmt.Sprintf("%d;request", msg.Operation))

	seq := s.nextSeqNum()
	entry := newLogEntry(s.view, seq, msg)
	prePrepare := PrePrepare{Req: msg, View: s.view, Seq: seq, SenderID: s.id}

	// The primary's own PrePrepare counts toward its prepare quorum.
	entry.prepareQuorum[prePrepare] = struct{}{}
	s.log[msg.Operation] = entry

	return broadcastToPeers(prePrepare, s.peers)
}

// handlePrePrepare accepts the primary's ordering, answers with a Prepare
// and merges into any entry created by out-of-order Prepares or Commits.
func (s *ReplicaState) handlePrePrepare(msg PrePrepare, now sim.Time) []delivery {
	if s.currPrimary() != msg.SenderID {
		s.logger.Warn().
			Int("node", s.id).
			Int("sender", msg.SenderID).
			Msg("PrePrepare from non-primary peer")
		return nil
	}

	op := msg.Req.Operation
	entry, ok := s.log[op]
	if !ok {
		entry = newLogEntry(msg.View, msg.Seq, msg.Req)
		s.log[op] = entry
	}

	s.results.Record(now.Millis(), s.id, fmt.Sprintf("%d;pre-prepared", op))

	prepare := Prepare{Req: entry.req, View: entry.view, Seq: entry.seq, SenderID: s.id}
	entry.prepareQuorum[msg] = struct{}{}
	entry.prepareQuorum[prepare] = struct{}{}

	output := broadcastToPeers(prepare, s.peers)
	return s.updatePredicates(op, output, now)
}

// handlePrepare records a prepare vote, creating the entry when the vote
// arrives before the PrePrepare.
func (s *ReplicaState) handlePrepare(msg Prepare, now sim.Time) []delivery {
	op := msg.Req.Operation

	if entry, ok := s.log[op]; ok {
		entry.prepareQuorum[msg] = struct{}{}
		return s.updatePredicates(op, nil, now)
	}

	entry := newLogEntry(msg.View, msg.Seq, msg.Req)
	entry.prepareQuorum[msg] = struct{}{}
	s.log[op] = entry
	return nil
}

// handleCommit records a commit vote, creating the entry when the vote
// arrives before any prepare-phase message.
func (s *ReplicaState) handleCommit(msg Commit, now sim.Time) []delivery {
	op := msg.Req.Operation

	if entry, ok := s.log[op]; ok {
		entry.commitQuorum[msg] = struct{}{}
		return s.updatePredicates(op, nil, now)
	}

	entry := newLogEntry(msg.View, msg.Seq, msg.Req)
	entry.commitQuorum[msg] = struct{}{}
	s.log[op] = entry
	return nil
}
