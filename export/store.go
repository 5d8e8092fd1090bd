package export

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/GoCodeAlone/bookstore/comms"
	"github.com/GoCodeAlone/bookstore/config"
	"github.com/GoCodeAlone/bookstore/scheduler"
	"github.com/GoCodeAlone/bookstore/world"
)

var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL,
	steps      INTEGER NOT NULL,
	revenue    REAL NOT NULL,
	books_sold INTEGER NOT NULL,
	digest     TEXT NOT NULL,
	config     TEXT NOT NULL DEFAULT '{}',
	summary    TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS snapshots (
	run_id TEXT NOT NULL,
	step   INTEGER NOT NULL,
	data   TEXT NOT NULL,
	PRIMARY KEY (run_id, step)
);
CREATE TABLE IF NOT EXISTS entities (
	run_id TEXT NOT NULL,
	kind   TEXT NOT NULL,
	id     TEXT NOT NULL,
	data   TEXT NOT NULL,
	PRIMARY KEY (run_id, kind, id)
);
CREATE TABLE IF NOT EXISTS orders (
	run_id        TEXT NOT NULL,
	id            TEXT NOT NULL,
	customer_id   TEXT NOT NULL,
	book_id       TEXT NOT NULL,
	quantity      INTEGER NOT NULL,
	total         REAL NOT NULL,
	status        TEXT NOT NULL,
	reason        TEXT NOT NULL DEFAULT '',
	assigned_to   TEXT NOT NULL DEFAULT '',
	created_step  INTEGER NOT NULL,
	resolved_step INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, id)
);
CREATE TABLE IF NOT EXISTS messages (
	run_id    TEXT NOT NULL,
	seq       INTEGER NOT NULL,
	step      INTEGER NOT NULL,
	sender    TEXT NOT NULL,
	recipient TEXT NOT NULL DEFAULT '',
	kind      TEXT NOT NULL,
	data      TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// Entity table kinds.
const (
	entityGenre     = "genre"
	entityAuthor    = "author"
	entityBook      = "book"
	entityInventory = "inventory"
	entityCustomer  = "customer"
	entityEmployee  = "employee"
)

// RunInfo is the listing row for a stored run.
type RunInfo struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Steps     int       `json:"steps"`
	Revenue   float64   `json:"revenue"`
	BooksSold int       `json:"books_sold"`
	Digest    string    `json:"digest"`
}

// SQLiteStore persists run records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures the
// schema exists. The caller is responsible for calling Close.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Save writes rec and all of its tables in one transaction.
func (s *SQLiteStore) Save(rec *Record) (err error) {
	cfgJSON, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	summaryJSON, err := json.Marshal(rec.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.Exec(`
		INSERT INTO runs (id, created_at, steps, revenue, books_sold, digest, config, summary)
		VALUES (?,?,?,?,?,?,?,?)`,
		rec.RunID, rec.CreatedAt, rec.Summary.Steps, rec.Summary.Revenue, rec.Summary.BooksSold,
		rec.Digest, string(cfgJSON), string(summaryJSON),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, snap := range rec.Snapshots {
		if err = insertJSON(tx, `INSERT INTO snapshots (run_id, step, data) VALUES (?,?,?)`, snap, rec.RunID, snap.Step); err != nil {
			return fmt.Errorf("insert snapshot %d: %w", snap.Step, err)
		}
	}
	if err = saveEntities(tx, rec); err != nil {
		return err
	}
	for _, o := range rec.Orders {
		_, err = tx.Exec(`
			INSERT INTO orders
				(run_id, id, customer_id, book_id, quantity, total, status, reason, assigned_to, created_step, resolved_step)
			VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			rec.RunID, o.ID, o.CustomerID, o.BookID, o.Quantity, o.Total,
			string(o.Status), string(o.Reason), o.AssignedTo, o.CreatedStep, o.ResolvedStep,
		)
		if err != nil {
			return fmt.Errorf("insert order %s: %w", o.ID, err)
		}
	}
	for _, m := range rec.Messages {
		err = insertJSON(tx, `INSERT INTO messages (run_id, seq, step, sender, recipient, kind, data) VALUES (?,?,?,?,?,?,?)`,
			m, rec.RunID, int64(m.Seq), m.Step, m.Sender, m.Recipient, string(m.Kind))
		if err != nil {
			return fmt.Errorf("insert message %d: %w", m.Seq, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// insertJSON runs query with args followed by the JSON encoding of v.
func insertJSON(tx *sql.Tx, query string, v any, args ...any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = tx.Exec(query, append(args, string(data))...)
	return err
}

func saveEntities(tx *sql.Tx, rec *Record) error {
	const q = `INSERT INTO entities (run_id, kind, id, data) VALUES (?,?,?,?)`
	put := func(kind, id string, v any) error {
		if err := insertJSON(tx, q, v, rec.RunID, kind, id); err != nil {
			return fmt.Errorf("insert %s %s: %w", kind, id, err)
		}
		return nil
	}
	for _, g := range rec.Genres {
		if err := put(entityGenre, g.ID, g); err != nil {
			return err
		}
	}
	for _, a := range rec.Authors {
		if err := put(entityAuthor, a.ID, a); err != nil {
			return err
		}
	}
	for _, b := range rec.Books {
		if err := put(entityBook, b.ID, b); err != nil {
			return err
		}
	}
	for _, inv := range rec.Inventory {
		if err := put(entityInventory, inv.BookID, inv); err != nil {
			return err
		}
	}
	for _, c := range rec.Customers {
		if err := put(entityCustomer, c.ID, c); err != nil {
			return err
		}
	}
	for _, e := range rec.Employees {
		if err := put(entityEmployee, e.ID, e); err != nil {
			return err
		}
	}
	return nil
}

// Load reads a stored run back into a Record.
func (s *SQLiteStore) Load(runID string) (*Record, error) {
	rec := &Record{RunID: runID}
	var cfgJSON, summaryJSON string
	err := s.db.QueryRow(`SELECT created_at, digest, config, summary FROM runs WHERE id = ?`, runID).
		Scan(&rec.CreatedAt, &rec.Digest, &cfgJSON, &summaryJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	if cfgJSON != "null" {
		rec.Config = &config.Config{}
		if err := json.Unmarshal([]byte(cfgJSON), rec.Config); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(summaryJSON), &rec.Summary); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}

	if rec.Snapshots, err = queryJSON[scheduler.Snapshot](s.db,
		`SELECT data FROM snapshots WHERE run_id = ? ORDER BY step`, runID); err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	if rec.Messages, err = queryJSON[comms.Message](s.db,
		`SELECT data FROM messages WHERE run_id = ? ORDER BY seq`, runID); err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	if err := s.loadEntities(rec); err != nil {
		return nil, err
	}
	if rec.Orders, err = s.loadOrders(runID); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) loadEntities(rec *Record) error {
	const q = `SELECT data FROM entities WHERE run_id = ? AND kind = ? ORDER BY id`
	var err error
	if rec.Genres, err = queryJSON[world.Genre](s.db, q, rec.RunID, entityGenre); err != nil {
		return fmt.Errorf("load genres: %w", err)
	}
	if rec.Authors, err = queryJSON[world.Author](s.db, q, rec.RunID, entityAuthor); err != nil {
		return fmt.Errorf("load authors: %w", err)
	}
	if rec.Books, err = queryJSON[world.Book](s.db, q, rec.RunID, entityBook); err != nil {
		return fmt.Errorf("load books: %w", err)
	}
	if rec.Inventory, err = queryJSON[world.InventoryRecord](s.db, q, rec.RunID, entityInventory); err != nil {
		return fmt.Errorf("load inventory: %w", err)
	}
	if rec.Customers, err = queryJSON[world.Customer](s.db, q, rec.RunID, entityCustomer); err != nil {
		return fmt.Errorf("load customers: %w", err)
	}
	if rec.Employees, err = queryJSON[world.Employee](s.db, q, rec.RunID, entityEmployee); err != nil {
		return fmt.Errorf("load employees: %w", err)
	}
	return nil
}

func (s *SQLiteStore) loadOrders(runID string) ([]world.Order, error) {
	rows, err := s.db.Query(`
		SELECT id, customer_id, book_id, quantity, total, status, reason, assigned_to, created_step, resolved_step
		FROM orders WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	defer rows.Close()

	var orders []world.Order
	for rows.Next() {
		var o world.Order
		var status, reason string
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.BookID, &o.Quantity, &o.Total,
			&status, &reason, &o.AssignedTo, &o.CreatedStep, &o.ResolvedStep); err != nil {
			return nil, err
		}
		o.Status = world.OrderStatus(status)
		o.Reason = world.RejectReason(reason)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Runs lists stored runs, newest first.
func (s *SQLiteStore) Runs() ([]RunInfo, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, steps, revenue, books_sold, digest
		FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var r RunInfo
		if err := rows.Scan(&r.RunID, &r.CreatedAt, &r.Steps, &r.Revenue, &r.BooksSold, &r.Digest); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// queryJSON decodes the single JSON column of every row into a T.
func queryJSON[T any](db *sql.DB, query string, args ...any) ([]T, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
