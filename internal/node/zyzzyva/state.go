// Package zyzzyva implements the Zyzzyva speculative-execution protocol:
// replicas execute requests before cross-replica agreement, the client
// aggregates their speculative responses into a commit certificate, and a
// client timeout drives the slow-path Commit fallback.
//
// The client is modelled as a cluster member: one of the configured nodes
// acts as the client, and the internal replica count is the configured count
// minus one.
package zyzzyva

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/adred-codev/bftsim/internal/monitoring"
	"github.com/adred-codev/bftsim/internal/sim"
)

// ClientID is the fixed node id acting as the client.
const ClientID = 2

const initialView = 1

type delivery struct {
	to  int
	msg sim.Message
}

func broadcastToPeers(msg sim.Message, peers []int) []delivery {
	out := make([]delivery, 0, len(peers))
	for _, id := range peers {
		out = append(out, delivery{to: id, msg: msg})
	}
	return out
}

// Role is the node's role in the cluster.
type Role int

const (
	Primary Role = iota
	Backup
	Client
)

// logEntry tracks one in-flight request. At the client the commit
// certificate and local-commit set fill up; at replicas the speculative and
// committed-local predicates flip.
type logEntry struct {
	req  ClientRequest
	view uint64
	seq  uint64

	commitCertificate map[SpeculativeResponse]struct{}
	localCommits      map[int]struct{}

	// All four predicates are monotonic.
	speculativeExecution bool
	committedLocal       bool
	completed            bool
	timedOut             bool
}

func newLogEntry(req ClientRequest, view, seq uint64) *logEntry {
	return &logEntry{
		req:               req,
		view:              view,
		seq:               seq,
		commitCertificate: make(map[SpeculativeResponse]struct{}),
		localCommits:      make(map[int]struct{}),
	}
}

// State is the per-node protocol state, shared by the client, the primary
// and the backups; the role decides which handlers are legal.
type State struct {
	id         int
	numOfNodes int // replicas only, excludes the client
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

// NewState builds the state for one node. numOfNodes counts the configured
// cluster including the client, so at least 5 are required for the 4
// replicas the protocol needs.
func NewState(id, numOfNodes int, results sim.ResultLogger, logger zerolog.Logger) *State {
	if numOfNodes < 5 {
		panic(fmt.Sprintf("zyzzyva: need 5 nodes (client is part of the cluster) but got %d", numOfNodes))
	}

	// The client occupies one configured slot; replicas are the rest.
	replicas := numOfNodes - 1
	f := (replicas - 1) / 3

	role := Backup
	switch id {
	case initialView:
		role = Primary
	case ClientID:
		role = Client
	}

	peers := make([]int, 0, replicas)
	for i := 1; i <= numOfNodes; i++ {
		if i != id && i != ClientID {
			peers = append(peers, i)
		}
	}

	return &State{
		id:         id,
		numOfNodes: replicas,
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

func (s *State) handleMessage(msg sim.Message, now sim.Time) []delivery {
	if s.canIgnore(msg) {
		s.logger.Debug().Int("node", s.id).Msg("dropping message for committed request")
		return nil
	}

	switch m := msg.(type) {
	case ClientRequest:
		return s.handleClientRequest(m, now)
	case ClientTimeout:
		return s.handleClientTimeout(m, now)
	case OrderRequest:
		return s.handleOrderRequest(m, now)
	case SpeculativeResponse:
		return s.handleSpeculativeResponse(m, now)
	case Commit:
		return s.handleCommit(m, now)
	case LocalCommit:
		return s.handleLocalCommit(m, now)
	default:
		panic(fmt.Sprintf("zyzzyva: node %d received a non-Zyzzyva message %T", s.id, msg))
	}
}

func (s *State) canIgnore(msg sim.Message) bool {
	var op uint64
	switch m := msg.(type) {
	case LocalCommit:
		op = m.Req.Operation
	case SpeculativeResponse:
		op = m.Req.Operation
	case OrderRequest:
		op = m.Req.Operation
	default:
		return false
	}
	_, ok := s.committed[op]
	return ok
}

func (s *State) currPrimary() int {
	return int(s.view % uint64(s.numOfNodes))
}

func (s *State) nextSeqNum() uint64 {
	s.nextSeq++
	return s.nextSeq
}

// gcEntry finalizes a request: the entry is dropped from the log and the
// operation recorded so late messages cannot resurrect it.
func (s *State) gcEntry(op uint64) {
	delete(s.log, op)
	s.committed[op] = struct{}{}
}

// handleClientRequest is role-dispatched: the client re-issues the injected
// request to the primary and arms its timeout; the primary speculatively
// executes and distributes the ordering; a backup must never see one.
func (s *State) handleClientRequest(msg ClientRequest, now sim.Time) []delivery {
	switch s.role {
	case Client:
		request := ClientRequest{Operation: msg.Operation, SenderID: s.id}
		s.log[msg.Operation] = newLogEntry(request, 0, 0)

		return []delivery{
			{to: s.currPrimary(), msg: request},
			// The host schedules this as a timeout event for the client
			// itself rather than a broadcast.
			{to: s.id, msg: ClientTimeout{ReqID: msg.Operation}},
		}
	case Primary:
		seq := s.nextSeqNum()
		entry := newLogEntry(msg, s.view, seq)

		s.results.Record(now.Millis(), s.id, fmt.Sprintf("%d;speculative_commit", msg.Operation))
		entry.speculativeExecution = true
		s.log[msg.Operation] = entry

		out := make([]delivery, 0, len(s.peers)+1)
		out = append(out, delivery{
			to:  ClientID,
			msg: SpeculativeResponse{Req: msg, View: s.view, Seq: seq, SenderID: s.id},
		})
		out = append(out, broadcastToPeers(OrderRequest{Req: msg, View: s.view, Seq: seq, SenderID: s.id}, s.peers)...)
		return out
	default:
		panic(fmt.Sprintf("zyzzyva: backup %d received a client request for operation %d", s.id, msg.Operation))
	}
}

// handleOrderRequest speculatively executes the primary's ordering at a
// backup and answers the client.
func (s *State) handleOrderRequest(msg OrderRequest, now sim.Time) []delivery {
	if s.role != Backup {
		panic(fmt.Sprintf("zyzzyva: only backups may receive an OrderRequest, but node %d got one", s.id))
	}
	op := msg.Req.Operation
	if _, ok := s.log[op]; ok {
		panic(fmt.Sprintf("zyzzyva: backup %d received an OrderRequest for operation %d with an existing entry", s.id, op))
	}

	entry := newLogEntry(msg.Req, msg.View, msg.Seq)
	entry.speculativeExecution = true
	s.log[op] = entry

	s.results.Record(now.Millis(), s.id, fmt.Sprintf("%d;speculative_commit", op))

	return []delivery{{
		to:  ClientID,
		msg: SpeculativeResponse{Req: msg.Req, View: msg.View, Seq: msg.Seq, SenderID: s.id},
	}}
}

// handleSpeculativeResponse grows the client's commit certificate. A full
// certificate (all replicas) completes the request on the fast path
// (Zyzzyva 4.a).
func (s *State) handleSpeculativeResponse(msg SpeculativeResponse, now sim.Time) []delivery {
	if s.role != Client {
		panic(fmt.Sprintf("zyzzyva: only the client may receive a SpeculativeResponse, but node %d got one", s.id))
	}

	op := msg.Req.Operation
	entry, ok := s.log[op]
	if !ok {
		panic(fmt.Sprintf("zyzzyva: client received a speculative response for unrequested operation %d", op))
	}

	// After the timeout fired only Commit/LocalCommit traffic counts.
	if entry.timedOut {
		return nil
	}

	entry.commitCertificate[msg] = struct{}{}

	if len(entry.commitCertificate) == s.quorumSize {
		s.results.Record(now.Millis(), s.id, fmt.Sprintf("%d;commit_certificate", op))
	}

	if len(entry.commitCertificate) == s.numOfNodes {
		s.results.Record(now.Millis(), s.id, fmt.Sprintf("%d;completed", op))
		entry.completed = true
		monitoring.RecordCommit("zyzzyva")
		s.gcEntry(op)
	}

	return nil
}

// handleClientTimeout marks the request timed out and picks the fallback:
// with a quorum-sized but incomplete certificate the client broadcasts a
// Commit (4.b); below quorum the request is reported as timed out (4.c).
func (s *State) handleClientTimeout(msg ClientTimeout, now sim.Time) []delivery {
	if s.role != Client {
		panic(fmt.Sprintf("zyzzyva: non-client node %d received a ClientTimeout", s.id))
	}

	entry, ok := s.log[msg.ReqID]
	if !ok {
		// Already completed and collected; nothing to fall back to.
		return nil
	}

	entry.timedOut = true
	certLen := len(entry.commitCertificate)

	if certLen >= s.quorumSize && certLen < len(s.peers) {
		return broadcastToPeers(Commit{
			ReqID:       msg.ReqID,
			Certificate: entry.certificateSnapshot(),
			SenderID:    s.id,
		}, s.peers)
	}

	if certLen < s.quorumSize {
		s.results.Record(now.Millis(), s.id, fmt.Sprintf("%d;timed-out", msg.ReqID))
	}

	return nil
}

// certificateSnapshot freezes the certificate into a sender-ordered slice
// so the Commit payload is deterministic across runs.
func (e *logEntry) certificateSnapshot() []SpeculativeResponse {
	snapshot := make([]SpeculativeResponse, 0, len(e.commitCertificate))
	for r := range e.commitCertificate {
		snapshot = append(snapshot, r)
	}
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].SenderID < snapshot[j].SenderID
	})
	return snapshot
}

// handleCommit installs the client's certificate at a replica and answers
// with a LocalCommit. A replica that never saw the request reconstructs the
// entry from the certificate's first response.
func (s *State) handleCommit(msg Commit, now sim.Time) []delivery {
	if s.role == Client {
		panic(fmt.Sprintf("zyzzyva: client %d received a Commit", s.id))
	}

	if entry, ok := s.log[msg.ReqID]; ok {
		entry.commitCertificate = make(map[SpeculativeResponse]struct{}, len(msg.Certificate))
		for _, r := range msg.Certificate {
			entry.commitCertificate[r] = struct{}{}
		}
		entry.committedLocal = true

		out := []delivery{{
			to:  ClientID,
			msg: LocalCommit{Req: entry.req, View: entry.view, Seq: entry.seq, SenderID: s.id},
		}}
		s.gcEntry(msg.ReqID)
		return out
	}

	if len(msg.Certificate) == 0 {
		panic(fmt.Sprintf("zyzzyva: node %d received a Commit with an empty certificate", s.id))
	}

	first := msg.Certificate[0]
	entry := newLogEntry(first.Req, first.View, first.Seq)
	entry.commitCertificate = make(map[SpeculativeResponse]struct{}, len(msg.Certificate))
	for _, r := range msg.Certificate {
		entry.commitCertificate[r] = struct{}{}
	}
	entry.committedLocal = true

	s.results.Record(now.Millis(), s.id, fmt.Sprintf("%d;committed_local", entry.req.Operation))

	out := []delivery{{
		to:  ClientID,
		msg: LocalCommit{Req: entry.req, View: entry.view, Seq: entry.seq, SenderID: s.id},
	}}
	s.gcEntry(msg.ReqID)
	return out
}

// handleLocalCommit collects replica acknowledgments at the client; a quorum
// of them completes the request on the slow path.
func (s *State) handleLocalCommit(msg LocalCommit, now sim.Time) []delivery {
	op := msg.Req.Operation
	entry, ok := s.log[op]
	if !ok {
		panic(fmt.Sprintf("zyzzyva: received a LocalCommit for operation %d that is not stored at the client", op))
	}

	entry.localCommits[msg.SenderID] = struct{}{}

	if len(entry.localCommits) >= s.quorumSize && !entry.completed {
		s.results.Record(now.Millis(), s.id, fmt.Sprintf("%d;completed", op))
		entry.completed = true
		monitoring.RecordCommit("zyzzyva")
		s.gcEntry(op)
	}

	return nil
}
