package comms

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/GoCodeAlone/bookstore/world"
)

func newTestBus(t *testing.T, agents ...string) *Bus {
	t.Helper()
	bus := NewBus()
	for _, id := range agents {
		if err := bus.Register(id); err != nil {
			t.Fatalf("Register(%s): %v", id, err)
		}
	}
	return bus
}

func alert(sender string) Message {
	return New(sender, "", SystemAlert{Type: AlertSale, BookID: "b1"})
}

func TestBus_DirectMessage(t *testing.T) {
	bus := newTestBus(t, "agent-a", "agent-b")
	bus.BeginStep(1)

	msg := New("agent-b", "agent-a", PurchaseRequest{OrderID: "ord-1", BookID: "b1", Quantity: 1})
	sent, err := bus.Publish(msg)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if sent.Seq != 1 || sent.Step != 1 {
		t.Errorf("stamp = seq %d step %d, want 1/1", sent.Seq, sent.Step)
	}

	bus.BeginStep(2)
	if got := bus.Drain("agent-b"); len(got) != 0 {
		t.Errorf("agent-b drained %d, want 0", len(got))
	}
	got := bus.Drain("agent-a")
	if len(got) != 1 {
		t.Fatalf("agent-a drained %d, want 1", len(got))
	}
	if p, ok := got[0].Payload.(PurchaseRequest); !ok || p.OrderID != "ord-1" {
		t.Errorf("payload = %#v", got[0].Payload)
	}
	if again := bus.Drain("agent-a"); len(again) != 0 {
		t.Errorf("second drain returned %d, want 0", len(again))
	}
}

func TestBus_OneStepLatency(t *testing.T) {
	bus := newTestBus(t, "a", "b")
	bus.BeginStep(5)

	if _, err := bus.Publish(New("a", "b", RestockRequest{BookID: "b1"})); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := bus.Drain("b"); len(got) != 0 {
		t.Fatalf("drain in publish step returned %d, want 0", len(got))
	}
	if bus.Pending("b") != 1 {
		t.Errorf("Pending = %d, want 1", bus.Pending("b"))
	}
	bus.BeginStep(6)
	if got := bus.Drain("b"); len(got) != 1 {
		t.Fatalf("drain in next step returned %d, want 1", len(got))
	}
}

func TestBus_FIFO(t *testing.T) {
	bus := newTestBus(t, "a", "b", "c")
	bus.BeginStep(1)

	for i := 0; i < 5; i++ {
		sender := "a"
		if i%2 == 1 {
			sender = "b"
		}
		if _, err := bus.Publish(New(sender, "c", PurchaseRequest{Quantity: i})); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	bus.BeginStep(2)
	got := bus.Drain("c")
	if len(got) != 5 {
		t.Fatalf("drained %d, want 5", len(got))
	}
	for i, m := range got {
		if m.Payload.(PurchaseRequest).Quantity != i {
			t.Errorf("message %d out of order: %+v", i, m)
		}
	}
}

func TestBus_Broadcast(t *testing.T) {
	bus := newTestBus(t, "lead", "agent-a", "agent-b", "agent-c")
	for _, id := range []string{"lead", "agent-a", "agent-b"} {
		if err := bus.Subscribe(id, KindSystemAlert); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}
	bus.BeginStep(1)
	if _, err := bus.Broadcast(alert("lead")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	bus.BeginStep(2)

	if got := bus.Drain("agent-a"); len(got) != 1 {
		t.Errorf("agent-a received %d, want 1", len(got))
	}
	if got := bus.Drain("agent-b"); len(got) != 1 {
		t.Errorf("agent-b received %d, want 1", len(got))
	}
	if got := bus.Drain("agent-c"); len(got) != 0 {
		t.Errorf("non-subscriber received %d, want 0", len(got))
	}
	if got := bus.Drain("lead"); len(got) != 0 {
		t.Errorf("sender received its own broadcast")
	}
	if bus.Published() != 1 {
		t.Errorf("Published = %d, want 1 log entry", bus.Published())
	}
}

func TestBus_BroadcastReachesSubscribersAtPublishTime(t *testing.T) {
	bus := newTestBus(t, "x", "late")
	bus.BeginStep(1)
	if _, err := bus.Broadcast(alert("x")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if err := bus.Subscribe("late", KindSystemAlert); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	bus.BeginStep(2)
	if got := bus.Drain("late"); len(got) != 0 {
		t.Errorf("late subscriber received %d, want 0", len(got))
	}
}

func TestBus_UnknownAgent(t *testing.T) {
	bus := newTestBus(t, "a")

	_, err := bus.Publish(New("a", "ghost", PurchaseRequest{}))
	if !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("err = %v, want ErrUnknownAgent", err)
	}
	if bus.Published() != 0 || bus.Outstanding() != 0 {
		t.Errorf("failed publish changed the bus: log=%d outstanding=%d", bus.Published(), bus.Outstanding())
	}
	if err := bus.Subscribe("ghost", KindSystemAlert); !errors.Is(err, ErrUnknownAgent) {
		t.Errorf("Subscribe err = %v, want ErrUnknownAgent", err)
	}
}

func TestBus_KindMismatch(t *testing.T) {
	bus := newTestBus(t, "a", "b")
	msg := Message{Sender: "a", Recipient: "b", Kind: KindRestockRequest, Payload: SystemAlert{}}
	if _, err := bus.Publish(msg); err == nil {
		t.Error("expected error for payload/kind mismatch")
	}
	if _, err := bus.Publish(Message{Sender: "a", Recipient: "b", Kind: "Gossip"}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("err = %v, want ErrUnknownKind", err)
	}
}

func TestBus_Log(t *testing.T) {
	bus := newTestBus(t, "lead", "agent-a", "agent-b")
	_ = bus.Subscribe("agent-a", KindSystemAlert)

	bus.BeginStep(1)
	_, _ = bus.Publish(New("lead", "agent-a", PurchaseRequest{}))
	_, _ = bus.Publish(New("agent-a", "lead", PurchaseCompleted{}))
	bus.BeginStep(2)
	_, _ = bus.Publish(New("lead", "agent-b", RestockRequest{})) // not visible to agent-a
	_, _ = bus.Broadcast(alert("lead"))

	got := bus.Log(Filter{Agent: "agent-a"})
	if len(got) != 3 {
		t.Fatalf("agent-a log = %d entries, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Seq >= got[i].Seq {
			t.Errorf("log not in publish order")
		}
	}
	if got := bus.Log(Filter{SinceStep: 2}); len(got) != 2 {
		t.Errorf("since step 2 = %d, want 2", len(got))
	}
	if got := bus.Log(Filter{Limit: 1}); len(got) != 1 || got[0].Kind != KindSystemAlert {
		t.Errorf("limit 1 = %+v, want the latest alert", got)
	}
	if got := bus.Log(Filter{Kind: KindPurchaseCompleted}); len(got) != 1 {
		t.Errorf("kind filter = %d, want 1", len(got))
	}

	st := bus.Stats()
	if st.Published != 4 || st.Broadcasts != 1 || st.ByKind[KindSystemAlert] != 1 || st.Outstanding != 4 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestMessage_JSONRoundTrip(t *testing.T) {
	in := New("emp-1", "cust-1", PurchaseRejected{OrderID: "ord-1", Reason: world.ReasonInsufficientStock})
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out Message
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	p, ok := out.Payload.(PurchaseRejected)
	if !ok {
		t.Fatalf("payload type = %T, want PurchaseRejected", out.Payload)
	}
	if p.Reason != world.ReasonInsufficientStock {
		t.Errorf("Reason = %q", p.Reason)
	}
}

func TestBus_ConcurrentReaders(t *testing.T) {
	bus := newTestBus(t, "a", "b")
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = bus.Log(Filter{Limit: 10})
			_ = bus.Stats()
		}
	}()
	for i := 0; i < 200; i++ {
		bus.BeginStep(i)
		_, _ = bus.Publish(New("a", "b", PurchaseRequest{Quantity: i}))
		_ = bus.Drain("b")
	}
	wg.Wait()
	if bus.Published() != 200 {
		t.Errorf("Published = %d, want 200", bus.Published())
	}
}

func TestBus_Requeue(t *testing.T) {
	bus := newTestBus(t, "a", "b")
	bus.BeginStep(1)
	for _, id := range []string{"bk-1", "bk-2"} {
		if _, err := bus.Publish(New("a", "b", RestockRequest{BookID: id})); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	bus.BeginStep(2)
	got := bus.Drain("b")
	if len(got) != 2 {
		t.Fatalf("drained %d, want 2", len(got))
	}
	if _, err := bus.Publish(New("a", "b", RestockRequest{BookID: "bk-3"})); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	bus.Requeue("b", got[1:])
	if s := bus.Stats(); s.Delivered != 1 || s.Published != 3 {
		t.Errorf("stats = %+v, want 1 delivered of 3 published", s)
	}

	bus.BeginStep(3)
	again := bus.Drain("b")
	if len(again) != 2 {
		t.Fatalf("drained %d after requeue, want 2", len(again))
	}
	if again[0].Seq != got[1].Seq || again[1].Payload.(RestockRequest).BookID != "bk-3" {
		t.Errorf("order after requeue = %+v", again)
	}
}
