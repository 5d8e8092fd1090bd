package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/GoCodeAlone/bookstore/agent"
	"github.com/GoCodeAlone/bookstore/comms"
	"github.com/GoCodeAlone/bookstore/export"
	"github.com/GoCodeAlone/bookstore/scheduler"
	"github.com/GoCodeAlone/bookstore/world"
)

const defaultMessageLimit = 100

// Handlers bundles all REST API handler dependencies.
type Handlers struct {
	Sim     Simulation
	Runs    RunStore // optional
	Logger  *slog.Logger
	Version string
}

// RegisterRoutes registers all protected API routes on the given mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/snapshots", h.listSnapshots)
	mux.HandleFunc("GET /api/snapshots/latest", h.latestSnapshot)
	mux.HandleFunc("GET /api/summary", h.summary)
	mux.HandleFunc("GET /api/world", h.world)

	mux.HandleFunc("GET /api/agents", h.listAgents)
	mux.HandleFunc("GET /api/agents/{id}", h.getAgent)

	mux.HandleFunc("GET /api/messages", h.listMessages)
	mux.HandleFunc("GET /api/messages/stats", h.messageStats)

	mux.HandleFunc("POST /api/sim/pause", h.control(h.Sim.Pause))
	mux.HandleFunc("POST /api/sim/resume", h.control(h.Sim.Resume))
	mux.HandleFunc("POST /api/sim/stop", h.control(h.Sim.Stop))

	mux.HandleFunc("GET /api/runs", h.listRuns)
	mux.HandleFunc("GET /api/runs/{id}", h.getRun)

	mux.HandleFunc("GET /api/status", h.status)
	mux.HandleFunc("GET /api/version", h.version)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// intParam parses an optional non-negative integer query parameter.
func intParam(r *http.Request, name string, def int) (int, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// --- Snapshot handlers ---

func (h *Handlers) listSnapshots(w http.ResponseWriter, r *http.Request) {
	since, ok := intParam(r, "since", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid since")
		return
	}
	history := h.Sim.History()
	out := make([]scheduler.Snapshot, 0, len(history))
	for _, snap := range history {
		if snap.Step >= since {
			out = append(out, snap)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) latestSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap, ok := h.Sim.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no snapshot recorded yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) summary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Sim.Summary())
}

func (h *Handlers) world(w http.ResponseWriter, _ *http.Request) {
	var view WorldView
	h.Sim.Inspect(func(st *world.State, bus *comms.Bus) {
		view = WorldView{
			Step:      bus.Step(),
			Genres:    st.Genres(),
			Authors:   st.Authors(),
			Books:     st.Books(),
			Inventory: st.InventoryRecords(),
			Customers: st.Customers(),
			Employees: st.Employees(),
			Orders:    st.Orders(),
		}
	})
	writeJSON(w, http.StatusOK, view)
}

// --- Agent handlers ---

func (h *Handlers) listAgents(w http.ResponseWriter, r *http.Request) {
	kind := agent.Kind(r.URL.Query().Get("kind"))
	infos := h.Sim.AgentInfo()
	out := make([]agent.Info, 0, len(infos))
	for _, info := range infos {
		if kind == "" || info.Kind == kind {
			out = append(out, info)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) getAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, info := range h.Sim.AgentInfo() {
		if info.ID == id {
			writeJSON(w, http.StatusOK, info)
			return
		}
	}
	writeError(w, http.StatusNotFound, "agent not found")
}

// --- Message handlers ---

func (h *Handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := comms.Filter{Agent: q.Get("agent"), Kind: comms.Kind(q.Get("kind"))}
	if filter.Kind != "" && !filter.Kind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown message kind")
		return
	}
	var ok bool
	if filter.SinceStep, ok = intParam(r, "since", 0); !ok {
		writeError(w, http.StatusBadRequest, "invalid since")
		return
	}
	if filter.Limit, ok = intParam(r, "limit", defaultMessageLimit); !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	var msgs []comms.Message
	h.Sim.Inspect(func(_ *world.State, bus *comms.Bus) {
		msgs = bus.Log(filter)
	})
	if msgs == nil {
		msgs = []comms.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handlers) messageStats(w http.ResponseWriter, _ *http.Request) {
	var stats comms.Stats
	h.Sim.Inspect(func(_ *world.State, bus *comms.Bus) {
		stats = bus.Stats()
	})
	writeJSON(w, http.StatusOK, stats)
}

// --- Control handlers ---

// control wraps a scheduler transition. An invalid transition is a conflict.
func (h *Handlers) control(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(); err != nil {
			if errors.Is(err, scheduler.ErrInvalidTransition) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.Logger.Info("simulation control", slog.String("path", r.URL.Path), slog.String("state", string(h.Sim.State())))
		writeJSON(w, http.StatusOK, map[string]any{
			"state": h.Sim.State(),
			"step":  h.Sim.StepIndex(),
		})
	}
}

// --- Run handlers ---

func (h *Handlers) listRuns(w http.ResponseWriter, _ *http.Request) {
	if h.Runs == nil {
		writeJSON(w, http.StatusOK, []export.RunInfo{})
		return
	}
	runs, err := h.Runs.Runs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []export.RunInfo{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handlers) getRun(w http.ResponseWriter, r *http.Request) {
	if h.Runs == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	rec, err := h.Runs.Load(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, export.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// --- Status / version ---

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Status  string          `json:"status"`
	State   scheduler.State `json:"state"`
	Step    int             `json:"step"`
	Version string          `json:"version"`
}

func (h *Handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:  "ok",
		State:   h.Sim.State(),
		Step:    h.Sim.StepIndex(),
		Version: h.Version,
	})
}

// StatusHandler returns the status handler function for external registration.
func (h *Handlers) StatusHandler() http.HandlerFunc {
	return h.status
}

func (h *Handlers) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": h.Version,
	})
}
