package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/matheus3301/chatsync/internal/domain"
)

// insertMessages stores the confirmed part of a window. Provisional messages
// are not persisted.
func insertMessages(ctx context.Context, tx *sql.Tx, ship, convo string, window []domain.Message) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (ship, convo, id, position, body)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ship, convo, id) DO NOTHING`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	pos := 0
	for _, m := range window {
		if _, ok := domain.ParseID(m.ID); !ok {
			continue
		}
		body, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode message %s/%s: %w", convo, m.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, ship, convo, m.ID, pos, string(body)); err != nil {
			return err
		}
		pos++
	}
	return nil
}

// listMessages returns the stored window of convo, newest first.
func (db *DB) listMessages(ctx context.Context, ship, convo string) ([]domain.Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT body FROM messages
		WHERE ship = ? AND convo = ?
		ORDER BY position ASC`, ship, convo)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []domain.Message
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var m domain.Message
		if err := json.Unmarshal([]byte(body), &m); err != nil {
			return nil, fmt.Errorf("decode message in %s: %w", convo, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
