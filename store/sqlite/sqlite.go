/*
Package sqlite provides a SQLite-backed implementation of the labor and
budget repositories.

PURPOSE:
  Persists positions, the salary configuration, budgets and compositions.
  Each record is stored as a JSON document next to the key columns that
  queries filter and sort on. The engine never queries inside a document.

INTERFACES IMPLEMENTED:
  labor.Repository:  via Store.Labor()
  budget.Repository: via Store.Budgets()

KEY TABLES:
  positions:    id, name, category, state, version + document
  settings:     singleton documents keyed by name ("salary_configuration")
  budgets:      id, name, version + document (header and valuation)
  compositions: id, budget_id (FK, ON DELETE CASCADE), sequence + document

MIGRATION:
  Schema is versioned with goose. The SQL files under migrations/ are
  embedded and applied on New().

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole sql.Tx, so a configuration cascade and the positions it rewrites
  commit or roll back together and no reader sees a partial cascade.
  The pool is limited to one connection; ":memory:" databases are
  per-connection.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) and foreign keys on.

USAGE:
  store, err := sqlite.New("./data/cost-engine.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  registry := labor.NewRegistry(store.Labor(), logger)
  budgets := budget.NewService(store.Budgets(), taxes, policy, logger)

SEE ALSO:
  - generic/store.go: repository contract
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/warp/cost-engine/budget"
	"github.com/warp/cost-engine/generic"
	"github.com/warp/cost-engine/labor"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its filesystem and dialect in package globals.
var migrateMu sync.Mutex

const salaryConfigurationKey = "salary_configuration"

// Store implements the repositories using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("run goose up migrations: %w", err)
	}
	return nil
}

// Labor returns the labor.Repository view of the store.
func (s *Store) Labor() labor.Repository {
	return &laborView{s: s, q: s.db}
}

// Budgets returns the budget.Repository view of the store.
func (s *Store) Budgets() budget.Repository {
	return &budgetView{s: s, q: s.db}
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"compositions", "budgets", "positions", "settings"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx executes fn within a database transaction. The write lock is
// held until commit or rollback.
func (s *Store) withTx(ctx context.Context, fn func(q querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// Views created inside a transaction already hold the write lock.
func (s *Store) rlock(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *Store) lock(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// =============================================================================
// LABOR VIEW
// =============================================================================

type laborView struct {
	s    *Store
	q    querier
	inTx bool
}

func (v *laborView) GetPosition(ctx context.Context, id string) (labor.Position, error) {
	defer v.s.rlock(v.inTx)()

	var doc string
	err := v.q.QueryRowContext(ctx, "SELECT document FROM positions WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return labor.Position{}, &generic.NotFoundError{Kind: "position", ID: id}
	}
	if err != nil {
		return labor.Position{}, err
	}
	var p labor.Position
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return labor.Position{}, fmt.Errorf("decode position %s: %w", id, err)
	}
	return p, nil
}

func (v *laborView) ListPositions(ctx context.Context) ([]labor.Position, error) {
	defer v.s.rlock(v.inTx)()

	docs, err := queryDocuments(ctx, v.q, "SELECT document FROM positions ORDER BY id")
	if err != nil {
		return nil, err
	}
	positions := make([]labor.Position, 0, len(docs))
	for _, doc := range docs {
		var p labor.Position
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return nil, fmt.Errorf("decode position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, nil
}

func (v *laborView) PutPosition(ctx context.Context, p labor.Position) error {
	defer v.s.lock(v.inTx)()

	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode position %s: %w", p.ID, err)
	}
	_, err = v.q.ExecContext(ctx, `
		INSERT INTO positions (id, name, category, state, version, document, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			state = excluded.state,
			version = excluded.version,
			document = excluded.document,
			updated_at = excluded.updated_at
	`, p.ID, p.Name, string(p.Category), string(p.State), p.Version, string(doc), timestamp(p.UpdatedAt))
	return err
}

func (v *laborView) DeletePosition(ctx context.Context, id string) error {
	defer v.s.lock(v.inTx)()
	return deleteByID(ctx, v.q, "positions", "position", id)
}

func (v *laborView) GetConfiguration(ctx context.Context) (labor.SalaryConfiguration, bool, error) {
	defer v.s.rlock(v.inTx)()

	var doc string
	err := v.q.QueryRowContext(ctx, "SELECT document FROM settings WHERE key = ?", salaryConfigurationKey).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return labor.SalaryConfiguration{}, false, nil
	}
	if err != nil {
		return labor.SalaryConfiguration{}, false, err
	}
	var cfg labor.SalaryConfiguration
	if err := json.Unmarshal([]byte(doc), &cfg); err != nil {
		return labor.SalaryConfiguration{}, false, fmt.Errorf("decode salary configuration: %w", err)
	}
	return cfg, true, nil
}

func (v *laborView) PutConfiguration(ctx context.Context, cfg labor.SalaryConfiguration) error {
	defer v.s.lock(v.inTx)()

	doc, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode salary configuration: %w", err)
	}
	_, err = v.q.ExecContext(ctx, `
		INSERT INTO settings (key, document, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			document = excluded.document,
			updated_at = excluded.updated_at
	`, salaryConfigurationKey, string(doc), timestamp(cfg.LastUpdated))
	return err
}

func (v *laborView) WithTx(ctx context.Context, fn func(labor.Repository) error) error {
	if v.inTx {
		return fn(v)
	}
	return v.s.withTx(ctx, func(q querier) error {
		return fn(&laborView{s: v.s, q: q, inTx: true})
	})
}

// =============================================================================
// BUDGET VIEW
// =============================================================================

type budgetView struct {
	s    *Store
	q    querier
	inTx bool
}

func (v *budgetView) GetBudget(ctx context.Context, id string) (budget.Budget, error) {
	defer v.s.rlock(v.inTx)()

	var doc string
	err := v.q.QueryRowContext(ctx, "SELECT document FROM budgets WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return budget.Budget{}, &generic.NotFoundError{Kind: "budget", ID: id}
	}
	if err != nil {
		return budget.Budget{}, err
	}
	var b budget.Budget
	if err := json.Unmarshal([]byte(doc), &b); err != nil {
		return budget.Budget{}, fmt.Errorf("decode budget %s: %w", id, err)
	}
	return b, nil
}

func (v *budgetView) ListBudgets(ctx context.Context) ([]budget.Budget, error) {
	defer v.s.rlock(v.inTx)()

	docs, err := queryDocuments(ctx, v.q, "SELECT document FROM budgets ORDER BY id")
	if err != nil {
		return nil, err
	}
	budgets := make([]budget.Budget, 0, len(docs))
	for _, doc := range docs {
		var b budget.Budget
		if err := json.Unmarshal([]byte(doc), &b); err != nil {
			return nil, fmt.Errorf("decode budget: %w", err)
		}
		budgets = append(budgets, b)
	}
	return budgets, nil
}

func (v *budgetView) PutBudget(ctx context.Context, b budget.Budget) error {
	defer v.s.lock(v.inTx)()

	b.Compositions = nil
	doc, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode budget %s: %w", b.ID, err)
	}
	_, err = v.q.ExecContext(ctx, `
		INSERT INTO budgets (id, name, version, document, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			version = excluded.version,
			document = excluded.document,
			updated_at = excluded.updated_at
	`, b.ID, b.Name, b.Version, string(doc), timestamp(b.UpdatedAt))
	return err
}

func (v *budgetView) DeleteBudget(ctx context.Context, id string) error {
	defer v.s.lock(v.inTx)()
	// Compositions go with it through ON DELETE CASCADE.
	return deleteByID(ctx, v.q, "budgets", "budget", id)
}

func (v *budgetView) GetComposition(ctx context.Context, id string) (budget.Composition, error) {
	defer v.s.rlock(v.inTx)()

	var doc string
	err := v.q.QueryRowContext(ctx, "SELECT document FROM compositions WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return budget.Composition{}, &generic.NotFoundError{Kind: "composition", ID: id}
	}
	if err != nil {
		return budget.Composition{}, err
	}
	return decodeComposition(doc)
}

func (v *budgetView) ListCompositions(ctx context.Context, budgetID string) ([]budget.Composition, error) {
	defer v.s.rlock(v.inTx)()

	docs, err := queryDocuments(ctx, v.q,
		"SELECT document FROM compositions WHERE budget_id = ? ORDER BY sequence, id", budgetID)
	if err != nil {
		return nil, err
	}
	comps := make([]budget.Composition, 0, len(docs))
	for _, doc := range docs {
		c, err := decodeComposition(doc)
		if err != nil {
			return nil, err
		}
		comps = append(comps, c)
	}
	return comps, nil
}

func (v *budgetView) PutComposition(ctx context.Context, c budget.Composition) error {
	defer v.s.lock(v.inTx)()

	var exists int
	err := v.q.QueryRowContext(ctx, "SELECT 1 FROM budgets WHERE id = ?", c.BudgetID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return &generic.NotFoundError{Kind: "budget", ID: c.BudgetID}
	}
	if err != nil {
		return err
	}

	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode composition %s: %w", c.ID, err)
	}
	_, err = v.q.ExecContext(ctx, `
		INSERT INTO compositions (id, budget_id, name, sequence, document, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			budget_id = excluded.budget_id,
			name = excluded.name,
			sequence = excluded.sequence,
			document = excluded.document,
			updated_at = excluded.updated_at
	`, c.ID, c.BudgetID, c.Name, c.Sequence, string(doc), timestamp(c.UpdatedAt))
	return err
}

func (v *budgetView) DeleteComposition(ctx context.Context, id string) error {
	defer v.s.lock(v.inTx)()
	return deleteByID(ctx, v.q, "compositions", "composition", id)
}

func (v *budgetView) WithTx(ctx context.Context, fn func(budget.Repository) error) error {
	if v.inTx {
		return fn(v)
	}
	return v.s.withTx(ctx, func(q querier) error {
		return fn(&budgetView{s: v.s, q: q, inTx: true})
	})
}

// =============================================================================
// UTILITIES
// =============================================================================

func queryDocuments(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []string
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func deleteByID(ctx context.Context, q querier, table, kind, id string) error {
	res, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &generic.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

func decodeComposition(doc string) (budget.Composition, error) {
	var c budget.Composition
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return budget.Composition{}, fmt.Errorf("decode composition: %w", err)
	}
	if c.Items == nil {
		c.Items = []budget.LineItem{}
	}
	return c, nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
