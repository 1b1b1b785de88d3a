package store

import (
	"context"
	"database/sql"
)

func insertConversation(ctx context.Context, tx *sql.Tx, ship string, r conversationRow) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (ship, id, position, name, members, leaders, muted, last_active, last_read, unreads, last_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ship, r.ID, r.Position, r.Name, r.Members, r.Leaders, r.Muted, r.LastActive, r.LastRead, r.Unreads, r.LastMessage)
	return err
}

// listConversations returns conversation rows in saved directory order.
func (db *DB) listConversations(ctx context.Context, ship string) ([]conversationRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, position, name, members, leaders, muted, last_active, last_read, unreads, last_message
		FROM conversations
		WHERE ship = ?
		ORDER BY position ASC`, ship)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []conversationRow
	for rows.Next() {
		var r conversationRow
		if err := rows.Scan(&r.ID, &r.Position, &r.Name, &r.Members, &r.Leaders, &r.Muted, &r.LastActive, &r.LastRead, &r.Unreads, &r.LastMessage); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
