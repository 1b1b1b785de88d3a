package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/domain"
)

// SaveSnapshot replaces the stored snapshot for snap.Ship.
func (db *DB) SaveSnapshot(ctx context.Context, snap domain.Snapshot) error {
	if snap.SavedAt == 0 {
		snap.SavedAt = time.Now().UnixMilli()
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE ship = ?`, snap.Ship); err != nil {
		return fmt.Errorf("save snapshot: clear: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (ship, version, saved_at) VALUES (?, ?, ?)`,
		snap.Ship, snap.Version, snap.SavedAt); err != nil {
		return fmt.Errorf("save snapshot: header: %w", err)
	}
	for i, c := range snap.Chats {
		row, err := toRow(i, c)
		if err != nil {
			return fmt.Errorf("save snapshot: encode %s: %w", c.Conversation.ID, err)
		}
		if err := insertConversation(ctx, tx, snap.Ship, row); err != nil {
			return fmt.Errorf("save snapshot: conversation %s: %w", row.ID, err)
		}
		if err := insertMessages(ctx, tx, snap.Ship, row.ID, c.Messages); err != nil {
			return fmt.Errorf("save snapshot: messages of %s: %w", row.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save snapshot: commit: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored snapshot for ship. It returns nil when
// there is none or when it was written with a different version.
func (db *DB) LoadSnapshot(ctx context.Context, ship string, version int) (*domain.Snapshot, error) {
	snap := domain.Snapshot{Ship: ship}
	err := db.QueryRowContext(ctx,
		`SELECT version, saved_at FROM snapshots WHERE ship = ?`, ship).
		Scan(&snap.Version, &snap.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if snap.Version != version {
		return nil, nil
	}

	rows, err := db.listConversations(ctx, ship)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: conversations: %w", err)
	}
	snap.Chats = make([]domain.Chat, 0, len(rows))
	for _, r := range rows {
		c, err := r.chat()
		if err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		if c.Messages, err = db.listMessages(ctx, ship, r.ID); err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		snap.Chats = append(snap.Chats, c)
	}
	return &snap, nil
}

// DeleteSnapshot removes everything stored for ship.
func (db *DB) DeleteSnapshot(ctx context.Context, ship string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM snapshots WHERE ship = ?`, ship); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
