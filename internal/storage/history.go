package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	dasherrors "gql-dashboard/internal/errors"
	"gql-dashboard/internal/gqlquery"
	"gql-dashboard/internal/logging"
)

// DefaultMaxHistoryEntries caps the history store when no limit is configured
const DefaultMaxHistoryEntries = 1000

// HistoryEntry is a saved GraphQL query
type HistoryEntry struct {
	ID            string                 `json:"id"`
	EndpointID    string                 `json:"endpointId"`
	Name          string                 `json:"name,omitempty"`
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
	Favorite      bool                   `json:"favorite"`
	UsageCount    int                    `json:"usageCount"`
	CreatedAt     time.Time              `json:"createdAt"`
	LastUsedAt    time.Time              `json:"lastUsedAt"`
}

// HistoryFilter narrows List results. Zero values match everything.
type HistoryFilter struct {
	EndpointID   string
	FavoriteOnly bool
	Limit        int
	Offset       int
}

// QueryUsage counts how often a normalized query ran against an endpoint
type QueryUsage struct {
	EndpointID string    `json:"endpointId"`
	Signature  string    `json:"signature"`
	Count      int       `json:"count"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}

// HistoryStore keeps saved queries in SQLite with a fixed entry quota
type HistoryStore struct {
	db         *sql.DB
	maxEntries int
	analyzer   *gqlquery.Analyzer
	logger     logging.Logger
	now        func() time.Time
}

// NewHistoryStore creates a history store on an open database
func NewHistoryStore(db *sql.DB, maxEntries int, analyzer *gqlquery.Analyzer, logger logging.Logger) *HistoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxHistoryEntries
	}
	if analyzer == nil {
		analyzer = gqlquery.NewAnalyzer()
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &HistoryStore{
		db:         db,
		maxEntries: maxEntries,
		analyzer:   analyzer,
		logger:     logger.WithComponent("history_store"),
		now:        time.Now,
	}
}

// MaxEntries returns the configured quota
func (s *HistoryStore) MaxEntries() int {
	return s.maxEntries
}

// Add saves a query. It fails with QUOTA_EXCEEDED once the store holds
// MaxEntries entries; usage tracking failures are logged and ignored.
func (s *HistoryStore) Add(ctx context.Context, entry HistoryEntry) (HistoryEntry, error) {
	if entry.EndpointID == "" {
		return HistoryEntry{}, dasherrors.NewRequiredFieldError("endpointId")
	}
	if entry.Query == "" {
		return HistoryEntry{}, dasherrors.NewRequiredFieldError("query")
	}

	count, err := s.Count(ctx)
	if err != nil {
		return HistoryEntry{}, err
	}
	if count >= s.maxEntries {
		return HistoryEntry{}, dasherrors.NewQuotaExceededError("query history", s.maxEntries)
	}

	now := s.now().UTC()
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.LastUsedAt.IsZero() {
		entry.LastUsedAt = entry.CreatedAt
	}

	vars, err := json.Marshal(entry.Variables)
	if err != nil {
		return HistoryEntry{}, dasherrors.NewValidationError("variables", err.Error(), nil)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO query_history
		(id, endpoint_id, name, query, operation_name, variables_json, favorite, usage_count, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.EndpointID, entry.Name, entry.Query, entry.OperationName, string(vars),
		boolToInt(entry.Favorite), entry.UsageCount, entry.CreatedAt.UnixMilli(), entry.LastUsedAt.UnixMilli())
	if err != nil {
		return HistoryEntry{}, dasherrors.NewDatabaseError("insert history entry", err)
	}

	if err := s.RecordUsage(ctx, entry.EndpointID, entry.Query); err != nil {
		s.logger.WarnContext(ctx, "Failed to record query usage", "endpoint_id", entry.EndpointID, "error", err)
	}
	return entry, nil
}

// Get returns a single entry
func (s *HistoryStore) Get(ctx context.Context, id string) (HistoryEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, endpoint_id, name, query, operation_name, variables_json,
		favorite, usage_count, created_at, last_used_at FROM query_history WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return HistoryEntry{}, dasherrors.NewNotFoundError("history entry", id)
	}
	if err != nil {
		return HistoryEntry{}, dasherrors.NewDatabaseError("get history entry", err)
	}
	return entry, nil
}

// List returns entries newest first
func (s *HistoryStore) List(ctx context.Context, filter HistoryFilter) ([]HistoryEntry, error) {
	query := `SELECT id, endpoint_id, name, query, operation_name, variables_json,
		favorite, usage_count, created_at, last_used_at FROM query_history WHERE 1=1`
	var args []interface{}
	if filter.EndpointID != "" {
		query += " AND endpoint_id = ?"
		args = append(args, filter.EndpointID)
	}
	if filter.FavoriteOnly {
		query += " AND favorite = 1"
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, max(filter.Offset, 0))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dasherrors.NewDatabaseError("list history", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, dasherrors.NewDatabaseError("scan history entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, dasherrors.NewDatabaseError("list history", err)
	}
	return entries, nil
}

// SetFavorite marks or unmarks an entry
func (s *HistoryStore) SetFavorite(ctx context.Context, id string, favorite bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE query_history SET favorite = ? WHERE id = ?`, boolToInt(favorite), id)
	if err != nil {
		return dasherrors.NewDatabaseError("update history entry", err)
	}
	return requireAffected(res, "history entry", id)
}

// MarkUsed bumps an entry's usage count and last-used time
func (s *HistoryStore) MarkUsed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE query_history SET usage_count = usage_count + 1, last_used_at = ? WHERE id = ?`,
		s.now().UTC().UnixMilli(), id)
	if err != nil {
		return dasherrors.NewDatabaseError("update history entry", err)
	}
	return requireAffected(res, "history entry", id)
}

// Delete removes an entry
func (s *HistoryStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM query_history WHERE id = ?`, id)
	if err != nil {
		return dasherrors.NewDatabaseError("delete history entry", err)
	}
	return requireAffected(res, "history entry", id)
}

// Clear removes every entry and returns how many were deleted
func (s *HistoryStore) Clear(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM query_history`)
	if err != nil {
		return 0, dasherrors.NewDatabaseError("clear history", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Count returns the number of stored entries
func (s *HistoryStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM query_history`).Scan(&n); err != nil {
		return 0, dasherrors.NewDatabaseError("count history", err)
	}
	return n, nil
}

// RecordUsage counts one execution of query against endpointID, keyed by
// the query's normalized signature
func (s *HistoryStore) RecordUsage(ctx context.Context, endpointID, query string) error {
	signature := s.analyzer.Identity(query)
	_, err := s.db.ExecContext(ctx, `INSERT INTO query_usage (endpoint_id, signature, count, last_used_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(endpoint_id, signature) DO UPDATE SET count = count + 1, last_used_at = excluded.last_used_at`,
		endpointID, signature, s.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// Usage returns usage counters for an endpoint (all endpoints when empty),
// most used first
func (s *HistoryStore) Usage(ctx context.Context, endpointID string, limit int) ([]QueryUsage, error) {
	query := `SELECT endpoint_id, signature, count, last_used_at FROM query_usage`
	var args []interface{}
	if endpointID != "" {
		query += " WHERE endpoint_id = ?"
		args = append(args, endpointID)
	}
	query += " ORDER BY count DESC, signature"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dasherrors.NewDatabaseError("list usage", err)
	}
	defer rows.Close()

	usage := make([]QueryUsage, 0)
	for rows.Next() {
		var u QueryUsage
		var last int64
		if err := rows.Scan(&u.EndpointID, &u.Signature, &u.Count, &last); err != nil {
			return nil, dasherrors.NewDatabaseError("scan usage", err)
		}
		u.LastUsedAt = time.UnixMilli(last).UTC()
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (HistoryEntry, error) {
	var (
		e                 HistoryEntry
		vars              string
		favorite          int
		created, lastUsed int64
	)
	if err := row.Scan(&e.ID, &e.EndpointID, &e.Name, &e.Query, &e.OperationName, &vars,
		&favorite, &e.UsageCount, &created, &lastUsed); err != nil {
		return HistoryEntry{}, err
	}
	if vars != "" && vars != "null" {
		if err := json.Unmarshal([]byte(vars), &e.Variables); err != nil {
			return HistoryEntry{}, fmt.Errorf("decode variables: %w", err)
		}
	}
	e.Favorite = favorite != 0
	e.CreatedAt = time.UnixMilli(created).UTC()
	e.LastUsedAt = time.UnixMilli(lastUsed).UTC()
	return e, nil
}

func requireAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return dasherrors.NewDatabaseError("rows affected", err)
	}
	if n == 0 {
		return dasherrors.NewNotFoundError(resource, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
