// Package relay maintains the gateway relay index: which gateway
// sessions have carried traffic for which node sessions, and when each
// pair last relayed. The index is an upsert-only map of pairs; repeat
// relays refresh the timestamp rather than duplicating the row.
package relay

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GatewayLink records that a gateway session relayed for a node session.
type GatewayLink struct {
	GatewaySessionID string    `json:"gateway_session_id"`
	NodeSessionID    string    `json:"node_session_id"`
	LastRelayAt      time.Time `json:"last_relay_at"`
}

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
// The ingestion pipeline binds the index to its transaction so the
// relay upsert commits atomically with the telemetry insert.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Index persists gateway relay links.
type Index interface {
	// Record upserts a (gateway, node) pair, refreshing last_relay_at.
	Record(ctx context.Context, gatewaySessionID, nodeSessionID string, at time.Time) error

	// ListForGateway returns all links where the session relayed as
	// gateway, most recent first.
	ListForGateway(ctx context.Context, gatewaySessionID string) ([]GatewayLink, error)

	// DeleteForSession removes every link involving the session, on
	// either side of the pair. Called on detach.
	DeleteForSession(ctx context.Context, sessionID string) error
}

// SQLiteIndex implements Index using SQLite.
type SQLiteIndex struct {
	db DBTX
}

// NewSQLiteIndex creates a new SQLite-backed relay index.
func NewSQLiteIndex(db DBTX) *SQLiteIndex {
	return &SQLiteIndex{db: db}
}

// WithTx returns an index bound to the given transaction.
func (i *SQLiteIndex) WithTx(tx *sql.Tx) *SQLiteIndex {
	return &SQLiteIndex{db: tx}
}

// Record upserts a (gateway, node) pair. The pair is the primary key,
// so a repeat relay only refreshes last_relay_at.
func (i *SQLiteIndex) Record(ctx context.Context, gatewaySessionID, nodeSessionID string, at time.Time) error {
	_, err := i.db.ExecContext(ctx, `
		INSERT INTO gateway_links (gateway_session_id, node_session_id, last_relay_at)
		VALUES (?, ?, ?)
		ON CONFLICT(gateway_session_id, node_session_id)
		DO UPDATE SET last_relay_at = excluded.last_relay_at`,
		gatewaySessionID,
		nodeSessionID,
		at.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording gateway link: %w", err)
	}
	return nil
}

// ListForGateway returns all links where the session relayed as gateway.
func (i *SQLiteIndex) ListForGateway(ctx context.Context, gatewaySessionID string) ([]GatewayLink, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT gateway_session_id, node_session_id, last_relay_at
		FROM gateway_links
		WHERE gateway_session_id = ?
		ORDER BY last_relay_at DESC`, gatewaySessionID)
	if err != nil {
		return nil, fmt.Errorf("querying gateway links: %w", err)
	}
	defer rows.Close()

	var links []GatewayLink
	for rows.Next() {
		var l GatewayLink
		var lastRelayAt string
		if err := rows.Scan(&l.GatewaySessionID, &l.NodeSessionID, &lastRelayAt); err != nil {
			return nil, fmt.Errorf("scanning gateway link: %w", err)
		}
		l.LastRelayAt, err = time.Parse(time.RFC3339, lastRelayAt)
		if err != nil {
			return nil, fmt.Errorf("parsing last_relay_at: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gateway links: %w", err)
	}
	return links, nil
}

// DeleteForSession removes every link involving the session.
func (i *SQLiteIndex) DeleteForSession(ctx context.Context, sessionID string) error {
	_, err := i.db.ExecContext(ctx, `
		DELETE FROM gateway_links
		WHERE gateway_session_id = ? OR node_session_id = ?`,
		sessionID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("deleting gateway links: %w", err)
	}
	return nil
}
