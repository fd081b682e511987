package core

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"powergrid/core/diff"
	"powergrid/core/power"
	"powergrid/core/types"
	"powergrid/crypto"
	"powergrid/storage"
)

// AppliedEvent describes one accepted transition, published to stream
// subscribers after the state change has landed.
type AppliedEvent struct {
	Index  uint64 `json:"index"`
	Power  string `json:"power"`
	Passed bool   `json:"passed"`
}

// Node owns the ledger, the gate and the auditor and serializes every
// operation against them. The protocol's single-writer execution model is
// enforced here: no snapshot, counter or power state mutation happens outside
// the node's lock, which is what makes the gate's freshness check sound.
type Node struct {
	mu      sync.Mutex
	db      storage.Database
	ledger  *Ledger
	gate    *Gate
	auditor *Auditor
	logger  *slog.Logger

	subMu       sync.Mutex
	subscribers map[int]chan AppliedEvent
	nextSubID   int
}

// NewNode assembles a node over an open database.
func NewNode(db storage.Database, verifier SignatureVerifier, fee *big.Int, logger *slog.Logger) (*Node, error) {
	ledger, err := NewLedger(db)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Node{
		db:          db,
		ledger:      ledger,
		gate:        NewGate(db, ledger, verifier, fee),
		auditor:     NewAuditor(db, ledger, verifier),
		logger:      logger,
		subscribers: make(map[int]chan AppliedEvent),
	}, nil
}

// AppendParticipant registers a new participant, producing a fresh snapshot.
func (n *Node) AppendParticipant(p crypto.Address) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	index, err := n.ledger.AppendParticipant(p)
	if err != nil {
		return 0, err
	}
	n.logger.Info("participant appended", "participant", p.String(), "index", index)
	return index, nil
}

// SubmitTransition runs one envelope through the gate.
func (n *Node) SubmitTransition(env *types.SignedEnvelope, payment *big.Int) (types.PowerState, error) {
	n.mu.Lock()
	state, err := n.gate.Submit(env, payment)
	if err != nil {
		n.mu.Unlock()
		return types.PowerState{}, err
	}
	// Publish before releasing the lock so subscribers observe events in
	// ledger order.
	n.publish(AppliedEvent{Index: env.TransitionIndex, Power: state.Power.Hex(), Passed: state.Passed})
	n.mu.Unlock()
	n.logger.Info("transition applied",
		"index", env.TransitionIndex,
		"power", state.Power.Hex(),
		"passed", state.Passed,
		"envelope", env.HashHex(),
	)
	return state, nil
}

// Audit evaluates an envelope without touching power state.
func (n *Node) Audit(env *types.SignedEnvelope) (Verdict, error) {
	n.mu.Lock()
	verdict, err := n.auditor.Audit(env)
	n.mu.Unlock()
	if err != nil {
		return Verdict{}, err
	}
	if verdict.Misbehaved {
		n.logger.Warn("audit flagged misbehaviour",
			"index", env.TransitionIndex,
			"reason", verdict.Reason,
			"envelope", env.HashHex(),
		)
	}
	return verdict, nil
}

// CurrentTransitionIndex returns the ledger counter.
func (n *Node) CurrentTransitionIndex() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.CurrentIndex()
}

// PowerState returns the persisted power state.
func (n *Node) PowerState() (types.PowerState, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return loadPowerState(n.db)
}

// SnapshotAt exposes the ledger's point-in-time participant set.
func (n *Node) SnapshotAt(index uint64) ([]crypto.Address, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.SnapshotAt(index)
}

// CanonicalDiff recomputes the byte-exact diff an honest operator would
// submit for the given index.
func (n *Node) CanonicalDiff(index uint64) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	snapshot, err := n.ledger.SnapshotAt(index)
	if err != nil {
		return nil, err
	}
	total, passed := power.Compute(snapshot, index)
	return diff.Encode(total, passed), nil
}

// SubmissionFee returns the exact payment the gate requires.
func (n *Node) SubmissionFee() *big.Int {
	return n.gate.Fee()
}

// FeePoolBalance returns the accumulated submission fee credits.
func (n *Node) FeePoolBalance() (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return feePoolBalance(n.db)
}

// Subscribe registers a transition stream consumer. Events are delivered
// best-effort: a subscriber that stops draining loses events rather than
// blocking the applier. The returned cancel must be called exactly once.
func (n *Node) Subscribe() (<-chan AppliedEvent, func()) {
	n.subMu.Lock()
	defer n.subMu.Unlock()
	id := n.nextSubID
	n.nextSubID++
	ch := make(chan AppliedEvent, 16)
	n.subscribers[id] = ch
	cancel := func() {
		n.subMu.Lock()
		defer n.subMu.Unlock()
		if existing, ok := n.subscribers[id]; ok {
			delete(n.subscribers, id)
			close(existing)
		}
	}
	return ch, cancel
}

func (n *Node) publish(event AppliedEvent) {
	n.subMu.Lock()
	defer n.subMu.Unlock()
	for _, ch := range n.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close releases the backing database.
func (n *Node) Close() {
	n.db.Close()
}

// String implements fmt.Stringer for debug logging.
func (n *Node) String() string {
	return fmt.Sprintf("powergrid node @ index %d", n.CurrentTransitionIndex())
}
