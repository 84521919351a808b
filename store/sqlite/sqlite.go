/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Persists policy versions and the audit log. The store holds no business
  rules; overlap healing and validation happen in the incentive service
  before anything reaches it.

INTERFACES IMPLEMENTED:
  incentive.TxStore:     Policy persistence with key-scoped transactions
  incentive.AuditSink:   Audit event recording
  incentive.AuditReader: Audit queries

KEY TABLES:
  policies:  One row per policy version. Identity, window and bookkeeping
             are columns; amounts, split rules and bonus tables are the
             config_json document (factory.RulesJSON).
  audit_log: Before/after snapshots of every policy change.

DATES:
  effective_from / effective_to are stored as YYYY-MM-DD TEXT, so string
  comparison in SQL is date comparison. effective_to NULL = open-ended.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole callback, which serializes writers for every key at once. The view
  handed to the callback uses unlocked helpers on the sql.Tx.

USAGE:
  store, err := sqlite.New("./data/incentives.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - incentive/store.go: Interface definitions
  - incentive/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/campus-rims/incentive-engine/factory"
	"github.com/campus-rims/incentive-engine/incentive"
)

// Store implements the incentive storage interfaces using SQLite.
type Store struct {
	db      *sql.DB
	mu      sync.RWMutex
	factory *factory.PolicyFactory
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.Contains(dbPath, ":memory:") {
		// Every pooled connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, factory: factory.NewPolicyFactory()}
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

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		sub_key TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		config_json TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		updated_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- As-of lookups and overlap scans (hot path)
	CREATE INDEX IF NOT EXISTS idx_policies_key_from
		ON policies(domain, sub_key, effective_from);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		domain TEXT NOT NULL,
		sub_key TEXT NOT NULL DEFAULT '',
		policy_id TEXT NOT NULL,
		before_json TEXT,
		after_json TEXT,
		actor_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_policy
		ON audit_log(policy_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_domain
		ON audit_log(domain, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// POLICY STORE (incentive.PolicyStore interface)
// =============================================================================

const policyColumns = `id, domain, sub_key, name, is_active, effective_from, effective_to,
	version, config_json, created_by, updated_by, created_at, updated_at`

// Save inserts a policy when its ID is empty and replaces it otherwise.
func (s *Store) Save(ctx context.Context, p incentive.Policy) (incentive.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, s.db, p)
}

func (s *Store) Get(ctx context.Context, id incentive.PolicyID) (incentive.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(ctx, s.db, id)
}

// FindActiveAsOf returns the active version in force on asOf, latest
// effective_from first.
func (s *Store) FindActiveAsOf(ctx context.Context, key incentive.DomainKey, asOf incentive.Date) (*incentive.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findActive(ctx, s.db, key, asOf)
}

func (s *Store) FindAllByDomain(ctx context.Context, key incentive.DomainKey) ([]incentive.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allByKey(ctx, s.db, key)
}

func (s *Store) List(ctx context.Context, domain incentive.Domain) ([]incentive.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(ctx, s.db, domain)
}

func (s *Store) Delete(ctx context.Context, id incentive.PolicyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delete(ctx, s.db, id)
}

func (s *Store) save(ctx context.Context, q queryer, p incentive.Policy) (incentive.Policy, error) {
	config, err := s.factory.MarshalRules(p)
	if err != nil {
		return incentive.Policy{}, fmt.Errorf("failed to encode policy rules: %w", err)
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	if p.Version == 0 {
		p.Version = 1
	}

	if p.ID == "" {
		p.ID = incentive.PolicyID(uuid.NewString())
		_, err = q.ExecContext(ctx, `
			INSERT INTO policies (`+policyColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			p.ID, p.Key.Domain, p.Key.SubKey, p.Name, p.IsActive,
			p.EffectiveFrom.String(), nullDate(p.EffectiveTo),
			p.Version, string(config), p.CreatedBy, p.UpdatedBy,
			p.CreatedAt.Format(time.RFC3339Nano), p.UpdatedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return incentive.Policy{}, fmt.Errorf("failed to insert policy: %w", err)
		}
		return p, nil
	}

	res, err := q.ExecContext(ctx, `
		UPDATE policies SET
			domain = ?, sub_key = ?, name = ?, is_active = ?,
			effective_from = ?, effective_to = ?, version = ?, config_json = ?,
			created_by = ?, updated_by = ?, created_at = ?, updated_at = ?
		WHERE id = ?
	`,
		p.Key.Domain, p.Key.SubKey, p.Name, p.IsActive,
		p.EffectiveFrom.String(), nullDate(p.EffectiveTo), p.Version, string(config),
		p.CreatedBy, p.UpdatedBy,
		p.CreatedAt.Format(time.RFC3339Nano), p.UpdatedAt.Format(time.RFC3339Nano),
		p.ID,
	)
	if err != nil {
		return incentive.Policy{}, fmt.Errorf("failed to update policy: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return incentive.Policy{}, &incentive.NotFoundError{ID: p.ID}
	}
	return p, nil
}

func (s *Store) get(ctx context.Context, q queryer, id incentive.PolicyID) (incentive.Policy, error) {
	row := q.QueryRowContext(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = ?`, id)
	p, err := s.scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return incentive.Policy{}, &incentive.NotFoundError{ID: id}
	}
	if err != nil {
		return incentive.Policy{}, err
	}
	return p, nil
}

func (s *Store) findActive(ctx context.Context, q queryer, key incentive.DomainKey, asOf incentive.Date) (*incentive.Policy, error) {
	day := asOf.String()
	row := q.QueryRowContext(ctx, `
		SELECT `+policyColumns+` FROM policies
		WHERE domain = ? AND sub_key = ? AND is_active = 1
		  AND effective_from <= ?
		  AND (effective_to IS NULL OR effective_to >= ?)
		ORDER BY effective_from DESC, id DESC
		LIMIT 1
	`, key.Domain, key.SubKey, day, day)
	p, err := s.scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) allByKey(ctx context.Context, q queryer, key incentive.DomainKey) ([]incentive.Policy, error) {
	return s.queryPolicies(ctx, q, `
		SELECT `+policyColumns+` FROM policies
		WHERE domain = ? AND sub_key = ?
		ORDER BY effective_from, id
	`, key.Domain, key.SubKey)
}

func (s *Store) list(ctx context.Context, q queryer, domain incentive.Domain) ([]incentive.Policy, error) {
	if domain == "" {
		return s.queryPolicies(ctx, q, `
			SELECT `+policyColumns+` FROM policies
			ORDER BY domain, sub_key, effective_from, id
		`)
	}
	return s.queryPolicies(ctx, q, `
		SELECT `+policyColumns+` FROM policies
		WHERE domain = ?
		ORDER BY sub_key, effective_from, id
	`, domain)
}

func (s *Store) delete(ctx context.Context, q queryer, id incentive.PolicyID) error {
	res, err := q.ExecContext(ctx, `DELETE FROM policies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &incentive.NotFoundError{ID: id}
	}
	return nil
}

func (s *Store) queryPolicies(ctx context.Context, q queryer, query string, args ...any) ([]incentive.Policy, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var result []incentive.Policy
	for rows.Next() {
		p, err := s.scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanPolicy(row scanner) (incentive.Policy, error) {
	var (
		p                    incentive.Policy
		id, domain, subKey   string
		from                 string
		to                   sql.NullString
		config               string
		createdAt, updatedAt string
	)
	err := row.Scan(&id, &domain, &subKey, &p.Name, &p.IsActive, &from, &to,
		&p.Version, &config, &p.CreatedBy, &p.UpdatedBy, &createdAt, &updatedAt)
	if err != nil {
		return incentive.Policy{}, err
	}

	p.ID = incentive.PolicyID(id)
	p.Key = incentive.DomainKey{Domain: incentive.Domain(domain), SubKey: subKey}
	if p.EffectiveFrom, err = incentive.ParseDate(from); err != nil {
		return incentive.Policy{}, fmt.Errorf("policy %s: %w", id, err)
	}
	if to.Valid {
		d, err := incentive.ParseDate(to.String)
		if err != nil {
			return incentive.Policy{}, fmt.Errorf("policy %s: %w", id, err)
		}
		p.EffectiveTo = &d
	}
	if err := s.factory.UnmarshalRules(&p, []byte(config)); err != nil {
		return incentive.Policy{}, fmt.Errorf("policy %s: %w", id, err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return p, nil
}

// =============================================================================
// TRANSACTIONS (incentive.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. The key is accepted for
// interface compatibility; the store-wide write lock already covers it.
func (s *Store) WithTx(ctx context.Context, _ incentive.DomainKey, fn func(incentive.PolicyStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{parent: s, tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore is the PolicyStore view inside WithTx. It never takes the parent
// lock, which WithTx already holds.
type txStore struct {
	parent *Store
	tx     *sql.Tx
}

func (ts *txStore) Save(ctx context.Context, p incentive.Policy) (incentive.Policy, error) {
	return ts.parent.save(ctx, ts.tx, p)
}

func (ts *txStore) Get(ctx context.Context, id incentive.PolicyID) (incentive.Policy, error) {
	return ts.parent.get(ctx, ts.tx, id)
}

func (ts *txStore) FindActiveAsOf(ctx context.Context, key incentive.DomainKey, asOf incentive.Date) (*incentive.Policy, error) {
	return ts.parent.findActive(ctx, ts.tx, key, asOf)
}

func (ts *txStore) FindAllByDomain(ctx context.Context, key incentive.DomainKey) ([]incentive.Policy, error) {
	return ts.parent.allByKey(ctx, ts.tx, key)
}

func (ts *txStore) List(ctx context.Context, domain incentive.Domain) ([]incentive.Policy, error) {
	return ts.parent.list(ctx, ts.tx, domain)
}

func (ts *txStore) Delete(ctx context.Context, id incentive.PolicyID) error {
	return ts.parent.delete(ctx, ts.tx, id)
}

// =============================================================================
// AUDIT LOG (incentive.AuditSink / incentive.AuditReader)
// =============================================================================

// Record appends an audit event.
func (s *Store) Record(ctx context.Context, ev incentive.AuditEvent) error {
	before, err := s.encodeSnapshot(ev.Before)
	if err != nil {
		return err
	}
	after, err := s.encodeSnapshot(ev.After)
	if err != nil {
		return err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, domain, sub_key, policy_id, before_json, after_json, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.ID, ev.Action, ev.Key.Domain, ev.Key.SubKey, ev.PolicyID,
		before, after, ev.ActorID, ev.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// QueryAudit returns matching events newest first.
func (s *Store) QueryAudit(ctx context.Context, f incentive.AuditFilter) ([]incentive.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, action, domain, sub_key, policy_id, before_json, after_json, actor_id, created_at
		FROM audit_log WHERE 1=1`
	var args []any
	if f.PolicyID != "" {
		query += ` AND policy_id = ?`
		args = append(args, f.PolicyID)
	}
	if f.Domain != "" {
		query += ` AND domain = ?`
		args = append(args, f.Domain)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var result []incentive.AuditEvent
	for rows.Next() {
		var (
			ev                  incentive.AuditEvent
			action, domain, sub string
			policyID, at        string
			before, after       sql.NullString
		)
		if err := rows.Scan(&ev.ID, &action, &domain, &sub, &policyID, &before, &after, &ev.ActorID, &at); err != nil {
			return nil, err
		}
		ev.Action = incentive.AuditAction(action)
		ev.Key = incentive.DomainKey{Domain: incentive.Domain(domain), SubKey: sub}
		ev.PolicyID = incentive.PolicyID(policyID)
		ev.At, _ = time.Parse(time.RFC3339Nano, at)
		if ev.Before, err = s.decodeSnapshot(before); err != nil {
			return nil, err
		}
		if ev.After, err = s.decodeSnapshot(after); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	return result, rows.Err()
}

func (s *Store) encodeSnapshot(p *incentive.Policy) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(s.factory.ToJSON(*p, incentive.DateOf(p.UpdatedAt)))
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode audit snapshot: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func (s *Store) decodeSnapshot(ns sql.NullString) (*incentive.Policy, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var doc factory.PolicyJSON
	if err := json.Unmarshal([]byte(ns.String), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode audit snapshot: %w", err)
	}
	p, err := s.factory.FromJSON(doc)
	if err != nil {
		return nil, err
	}
	p.Version = doc.Version
	p.IsDefault = doc.IsDefault
	p.CreatedBy, p.UpdatedBy = doc.CreatedBy, doc.UpdatedBy
	if doc.CreatedAt != nil {
		p.CreatedAt = *doc.CreatedAt
	}
	if doc.UpdatedAt != nil {
		p.UpdatedAt = *doc.UpdatedAt
	}
	return &p, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullDate(d *incentive.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
