package agent

import (
	"fmt"
	"math/rand/v2"

	"github.com/GoCodeAlone/bookstore/world"
)

// Policy chooses the book a customer tries to buy. ok is false when the customer
// takes no action this step.
type Policy interface {
	Name() string
	Choose(c world.Customer, st *world.State, rng *rand.Rand) (bookID string, ok bool)
}

// PolicyByName returns the named policy: "preference" (the default) or "impulse".
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "preference":
		return PreferencePolicy{}, nil
	case "impulse":
		return ImpulsePolicy{}, nil
	}
	return nil, fmt.Errorf("unknown purchase policy %q", name)
}

// PreferencePolicy picks an affordable, in-stock book from the customer's preferred
// genres: strongest preference first, then lowest price, then identifier.
type PreferencePolicy struct{}

func (PreferencePolicy) Name() string { return "preference" }

func (PreferencePolicy) Choose(c world.Customer, st *world.State, _ *rand.Rand) (string, bool) {
	var best world.Book
	bestRank := -1
	for _, b := range st.Books() {
		rank := c.PreferenceRank(b.GenreID)
		if rank < 0 || b.Price > c.Budget {
			continue
		}
		inv, ok := st.Inventory(b.ID)
		if !ok || inv.Quantity < 1 {
			continue
		}
		// Books() is in identifier order, so strict comparisons keep the lower id.
		if bestRank < 0 || rank < bestRank || (rank == bestRank && b.Price < best.Price) {
			best, bestRank = b, rank
		}
	}
	if bestRank < 0 {
		return "", false
	}
	return best.ID, true
}

// ImpulsePolicy picks a random book from a random preferred genre without checking
// stock or budget, so some of its orders are rejected.
type ImpulsePolicy struct{}

func (ImpulsePolicy) Name() string { return "impulse" }

func (ImpulsePolicy) Choose(c world.Customer, st *world.State, rng *rand.Rand) (string, bool) {
	if len(c.Preferences) == 0 {
		return "", false
	}
	books := st.ListBooksByGenre(c.Preferences[rng.IntN(len(c.Preferences))])
	if len(books) == 0 {
		return "", false
	}
	return books[rng.IntN(len(books))].ID, true
}
