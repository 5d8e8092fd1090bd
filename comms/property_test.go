package comms

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestDeliveryProperties publishes a random mix of direct messages and broadcasts
// across several steps and checks exactly-once FIFO delivery with one-step latency.
func TestDeliveryProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 150
	properties := gopter.NewProperties(parameters)

	agents := []string{"a0", "a1", "a2", "a3"}

	properties.Property("exactly-once FIFO delivery after one step", prop.ForAll(
		func(targets []int) bool {
			bus := NewBus()
			for i, id := range agents {
				_ = bus.Register(id)
				if i%2 == 0 {
					_ = bus.Subscribe(id, KindSystemAlert)
				}
			}
			want := make(map[string][]uint64)
			got := make(map[string][]uint64)

			step := 1
			bus.BeginStep(step)
			for i, target := range targets {
				sender := agents[i%len(agents)]
				if target == len(agents) {
					m, err := bus.Broadcast(alert(sender))
					if err != nil {
						return false
					}
					for _, id := range bus.Subscribers(KindSystemAlert) {
						if id != sender {
							want[id] = append(want[id], m.Seq)
						}
					}
				} else {
					m, err := bus.Publish(New(sender, agents[target], PurchaseRequest{}))
					if err != nil {
						return false
					}
					want[agents[target]] = append(want[agents[target]], m.Seq)
				}
				if i%3 == 2 {
					for _, id := range agents {
						for _, m := range bus.Drain(id) {
							if m.Step >= step {
								return false
							}
							got[id] = append(got[id], m.Seq)
						}
					}
					step++
					bus.BeginStep(step)
				}
			}
			bus.BeginStep(step + 1)
			for _, id := range agents {
				for _, m := range bus.Drain(id) {
					got[id] = append(got[id], m.Seq)
				}
			}
			if bus.Outstanding() != 0 {
				return false
			}
			for _, id := range agents {
				if len(want[id]) != len(got[id]) {
					return false
				}
				for i := range want[id] {
					if want[id][i] != got[id][i] {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(agents))),
	))

	properties.TestingRun(t)
}
