package database

import (
	"database/sql"
	"fmt"
	"time"
)

const postColumns = "id, camp_id, author_id, role, body, link, content_fetched, created_at"

// InsertPost stores a post. Returns 1 on insert, 0 if the ID already exists.
func (db *DB) InsertPost(p Post) (int64, error) {
	role := p.Role
	if role == "" {
		role = RoleStudent
	}
	result, err := db.conn.Exec(
		`INSERT OR IGNORE INTO posts (`+postColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.CampID, p.AuthorID, role, p.Body, p.Link, boolInt(p.ContentFetched),
		p.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting post %s: %w", p.ID, err)
	}
	return result.RowsAffected()
}

// GetPostsForWindow returns the posts of a camp by authors with the given
// role, created in [start, end), oldest first.
func (db *DB) GetPostsForWindow(campID, role string, start, end time.Time) ([]Post, error) {
	rows, err := db.conn.Query(
		`SELECT `+postColumns+` FROM posts
		WHERE camp_id = ? AND role = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at, id`,
		campID, role, start.UTC().Format(timeLayout), end.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// GetPostsNeedingFetch returns link posts with an empty body that haven't been fetched.
// An empty campID matches every camp.
func (db *DB) GetPostsNeedingFetch(campID string) ([]Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE body = '' AND link IS NOT NULL AND content_fetched = 0`
	var args []any
	if campID != "" {
		query += " AND camp_id = ?"
		args = append(args, campID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// UpdatePostBody sets the body of a post after fetching.
func (db *DB) UpdatePostBody(postID, body string) error {
	_, err := db.conn.Exec(
		"UPDATE posts SET body = ?, content_fetched = 1 WHERE id = ?", body, postID,
	)
	return err
}

// MarkPostFetchAttempted marks that we tried to fetch the post body.
func (db *DB) MarkPostFetchAttempted(postID string) error {
	_, err := db.conn.Exec("UPDATE posts SET content_fetched = 1 WHERE id = ?", postID)
	return err
}

// GetPost returns a single post by ID.
func (db *DB) GetPost(postID string) (*Post, error) {
	rows, err := db.conn.Query(`SELECT `+postColumns+` FROM posts WHERE id = ?`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	posts, err := scanPosts(rows)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, nil
	}
	return &posts[0], nil
}

func scanPosts(rows *sql.Rows) ([]Post, error) {
	var posts []Post
	for rows.Next() {
		var p Post
		var fetched int
		var created string
		if err := rows.Scan(&p.ID, &p.CampID, &p.AuthorID, &p.Role, &p.Body, &p.Link,
			&fetched, &created); err != nil {
			return nil, err
		}
		t, err := time.Parse(timeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("post %s: bad created_at %q: %w", p.ID, created, err)
		}
		p.CreatedAt = t
		p.ContentFetched = fetched != 0
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
