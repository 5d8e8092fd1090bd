// Package api defines the REST API handlers and interfaces for the bookstore server.
package api

import (
	"github.com/GoCodeAlone/bookstore/agent"
	"github.com/GoCodeAlone/bookstore/comms"
	"github.com/GoCodeAlone/bookstore/export"
	"github.com/GoCodeAlone/bookstore/scheduler"
	"github.com/GoCodeAlone/bookstore/world"
)

// Simulation is the view of a running scheduler the API reads and controls.
// Implemented by *scheduler.Scheduler.
type Simulation interface {
	State() scheduler.State
	StepIndex() int
	History() []scheduler.Snapshot
	Latest() (scheduler.Snapshot, bool)
	Summary() scheduler.Summary
	AgentInfo() []agent.Info
	Inspect(fn func(st *world.State, bus *comms.Bus))
	Pause() error
	Resume() error
	Stop() error
}

// RunStore lists and loads exported runs. Implemented by *export.SQLiteStore.
type RunStore interface {
	Runs() ([]export.RunInfo, error)
	Load(runID string) (*export.Record, error)
}

// WorldView is the entity-table dump served by GET /api/world.
type WorldView struct {
	Step      int                     `json:"step"`
	Genres    []world.Genre           `json:"genres"`
	Authors   []world.Author          `json:"authors"`
	Books     []world.Book            `json:"books"`
	Inventory []world.InventoryRecord `json:"inventory"`
	Customers []world.Customer        `json:"customers"`
	Employees []world.Employee        `json:"employees"`
	Orders    []world.Order           `json:"orders"`
}
