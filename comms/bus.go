package comms

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	ErrUnknownAgent = errors.New("unknown agent")
	ErrUnknownKind  = errors.New("unknown message kind")
)

// Bus routes messages between registered agents. Each recipient has its own FIFO
// queue. A message published during step N becomes visible to Drain once the bus
// has been advanced to step N+1 with BeginStep.
//
// Agents are activated sequentially, so the mutex only guards against readers of the
// log (the reporting server) running alongside the step loop.
type Bus struct {
	mu     sync.Mutex
	step   int
	seq    uint64
	agents map[string]struct{}
	subs   map[Kind]map[string]struct{}
	queues map[string][]Message
	log    []Message

	delivered int
}

// NewBus creates an empty bus at step 0.
func NewBus() *Bus {
	return &Bus{
		agents: make(map[string]struct{}),
		subs:   make(map[Kind]map[string]struct{}),
		queues: make(map[string][]Message),
	}
}

// Register makes agentID addressable. Registering twice is a no-op.
func (b *Bus) Register(agentID string) error {
	if agentID == "" {
		return fmt.Errorf("register: empty agent id")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.agents[agentID] = struct{}{}
	return nil
}

// Subscribe registers interest in broadcasts of the given kinds.
func (b *Bus) Subscribe(agentID string, kinds ...Kind) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.agents[agentID]; !ok {
		return fmt.Errorf("subscribe %s: %w", agentID, ErrUnknownAgent)
	}
	for _, k := range kinds {
		if !k.Valid() {
			return fmt.Errorf("subscribe %s: %w %q", agentID, ErrUnknownKind, k)
		}
		set, ok := b.subs[k]
		if !ok {
			set = make(map[string]struct{})
			b.subs[k] = set
		}
		set[agentID] = struct{}{}
	}
	return nil
}

// Subscribers returns the agents subscribed to k in identifier order.
func (b *Bus) Subscribers(k Kind) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribersLocked(k)
}

func (b *Bus) subscribersLocked(k Kind) []string {
	out := make([]string, 0, len(b.subs[k]))
	for id := range b.subs[k] {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// BeginStep advances the delivery horizon to step n. Messages created before n
// become drainable.
func (b *Bus) BeginStep(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.step = n
}

// Step returns the current step.
func (b *Bus) Step() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.step
}

// Publish enqueues msg for its recipient, stamping it with the next sequence number
// and the current step. A message without a recipient is broadcast. Publishing to an
// unregistered recipient fails with ErrUnknownAgent and leaves the bus unchanged.
func (b *Bus) Publish(msg Message) (Message, error) {
	if msg.Recipient == "" {
		return b.Broadcast(msg)
	}
	if err := validate(msg); err != nil {
		return Message{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.agents[msg.Recipient]; !ok {
		return Message{}, fmt.Errorf("publish %s to %s: %w", msg.Kind, msg.Recipient, ErrUnknownAgent)
	}
	msg = b.stampLocked(msg)
	b.queues[msg.Recipient] = append(b.queues[msg.Recipient], msg)
	return msg, nil
}

// Broadcast enqueues one copy of msg for every agent subscribed to its kind at the
// time of the call, except the sender. The log records it once.
func (b *Bus) Broadcast(msg Message) (Message, error) {
	msg.Recipient = ""
	if err := validate(msg); err != nil {
		return Message{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	msg = b.stampLocked(msg)
	for _, id := range b.subscribersLocked(msg.Kind) {
		if id == msg.Sender {
			continue
		}
		b.queues[id] = append(b.queues[id], msg)
	}
	return msg, nil
}

func validate(msg Message) error {
	if !msg.Kind.Valid() {
		return fmt.Errorf("publish: %w %q", ErrUnknownKind, msg.Kind)
	}
	if msg.Payload != nil && msg.Payload.Kind() != msg.Kind {
		return fmt.Errorf("publish: payload %s does not match kind %s", msg.Payload.Kind(), msg.Kind)
	}
	return nil
}

func (b *Bus) stampLocked(msg Message) Message {
	b.seq++
	msg.Seq = b.seq
	msg.Step = b.step
	b.log = append(b.log, msg)
	return msg
}

// Drain returns and removes every message queued for agentID that was created before
// the current step, in enqueue order.
func (b *Bus) Drain(agentID string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queues[agentID]
	n := 0
	for n < len(q) && q[n].Step < b.step {
		n++
	}
	if n == 0 {
		return nil
	}
	out := slices.Clone(q[:n])
	rest := q[n:]
	if len(rest) == 0 {
		delete(b.queues, agentID)
	} else {
		b.queues[agentID] = slices.Clone(rest)
	}
	b.delivered += n
	return out
}

// Requeue puts messages an agent drained but did not handle back at the front of
// its queue, ahead of anything queued since. They keep their sequence numbers, are
// not logged again, and are drainable on the agent's next turn.
func (b *Bus) Requeue(agentID string, msgs []Message) {
	if len(msgs) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[agentID] = append(slices.Clone(msgs), b.queues[agentID]...)
	b.delivered -= len(msgs)
}

// Pending returns the number of messages queued for agentID, drainable or not.
func (b *Bus) Pending(agentID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[agentID])
}

// Outstanding returns the number of queued, undelivered message copies.
func (b *Bus) Outstanding() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, q := range b.queues {
		n += len(q)
	}
	return n
}

// Published returns the length of the message log.
func (b *Bus) Published() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.log)
}

// Filter selects entries from the message log. Zero values match everything.
type Filter struct {
	Agent     string // sender or recipient; broadcasts match when the agent subscribes to the kind
	Kind      Kind
	SinceStep int
	Limit     int // most recent entries only
}

// Log returns the message log entries matching f in publish order.
func (b *Bus) Log(f Filter) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var result []Message
	for i := len(b.log) - 1; i >= 0; i-- {
		m := b.log[i]
		if m.Step < f.SinceStep {
			break
		}
		if f.Kind != "" && m.Kind != f.Kind {
			continue
		}
		if f.Agent != "" && !b.involvesLocked(m, f.Agent) {
			continue
		}
		result = append(result, m)
		if f.Limit > 0 && len(result) >= f.Limit {
			break
		}
	}
	slices.Reverse(result)
	return result
}

func (b *Bus) involvesLocked(m Message, agentID string) bool {
	if m.Sender == agentID || m.Recipient == agentID {
		return true
	}
	if m.Broadcast() {
		_, ok := b.subs[m.Kind][agentID]
		return ok
	}
	return false
}

// Stats summarizes bus traffic.
type Stats struct {
	Published   int          `json:"published"`
	Broadcasts  int          `json:"broadcasts"`
	Delivered   int          `json:"delivered"`
	Outstanding int          `json:"outstanding"`
	ByKind      map[Kind]int `json:"by_kind"`
}

// Stats returns traffic counters derived from the log and the queues.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Stats{Published: len(b.log), Delivered: b.delivered, ByKind: make(map[Kind]int)}
	for _, m := range b.log {
		s.ByKind[m.Kind]++
		if m.Broadcast() {
			s.Broadcasts++
		}
	}
	for _, q := range b.queues {
		s.Outstanding += len(q)
	}
	return s
}
