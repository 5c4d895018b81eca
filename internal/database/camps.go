package database

import "database/sql"

// InsertCamp creates a camp, or updates its name and feed URL if it exists.
func (db *DB) InsertCamp(id, name string, boardFeedURL *string) error {
	_, err := db.conn.Exec(
		`INSERT INTO camps (id, name, board_feed_url) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, board_feed_url = excluded.board_feed_url`,
		id, name, boardFeedURL,
	)
	return err
}

// GetCamp returns a single camp by ID.
func (db *DB) GetCamp(id string) (*Camp, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, board_feed_url, created_at FROM camps WHERE id = ?", id,
	)
	var c Camp
	if err := row.Scan(&c.ID, &c.Name, &c.BoardFeedURL, &c.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// GetAllCamps returns all camps ordered by ID.
func (db *DB) GetAllCamps() ([]Camp, error) {
	rows, err := db.conn.Query("SELECT id, name, board_feed_url, created_at FROM camps ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var camps []Camp
	for rows.Next() {
		var c Camp
		if err := rows.Scan(&c.ID, &c.Name, &c.BoardFeedURL, &c.CreatedAt); err != nil {
			return nil, err
		}
		camps = append(camps, c)
	}
	return camps, rows.Err()
}
