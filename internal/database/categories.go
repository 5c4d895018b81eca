package database

import (
	"database/sql"
	"fmt"
	"strings"
)

const categoryColumns = "id, camp_id, label, description, position, is_active, created_at, updated_at"

// InsertCategory appends a category label to a camp's template.
func (db *DB) InsertCategory(campID, label string, description *string) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO category_templates (camp_id, label, description, position)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM category_templates WHERE camp_id = ?))`,
		campID, label, description, campID,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetCategories returns every category of a camp, active or not, in template order.
func (db *DB) GetCategories(campID string) ([]CategoryTemplate, error) {
	return db.queryCategories(
		"SELECT "+categoryColumns+" FROM category_templates WHERE camp_id = ? ORDER BY position, id",
		campID,
	)
}

// GetCategoryTemplate returns the ordered active labels of a camp.
// An empty result means the camp has no fixed taxonomy.
func (db *DB) GetCategoryTemplate(campID string) ([]string, error) {
	cats, err := db.queryCategories(
		"SELECT "+categoryColumns+" FROM category_templates WHERE camp_id = ? AND is_active = 1 ORDER BY position, id",
		campID,
	)
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(cats))
	for _, c := range cats {
		labels = append(labels, c.Label)
	}
	return labels, nil
}

// GetCategory returns a single category by ID.
func (db *DB) GetCategory(categoryID int64) (*CategoryTemplate, error) {
	cats, err := db.queryCategories(
		"SELECT "+categoryColumns+" FROM category_templates WHERE id = ?", categoryID,
	)
	if err != nil {
		return nil, err
	}
	if len(cats) == 0 {
		return nil, nil
	}
	return &cats[0], nil
}

// UpdateCategory updates specified fields of a category.
func (db *DB) UpdateCategory(categoryID int64, label, description *string, position *int) error {
	var updates []string
	var args []any

	if label != nil {
		updates = append(updates, "label = ?")
		args = append(args, *label)
	}
	if description != nil {
		updates = append(updates, "description = ?")
		args = append(args, *description)
	}
	if position != nil {
		updates = append(updates, "position = ?")
		args = append(args, *position)
	}
	if len(updates) == 0 {
		return nil
	}

	updates = append(updates, "updated_at = datetime('now')")
	args = append(args, categoryID)

	query := fmt.Sprintf("UPDATE category_templates SET %s WHERE id = ?", strings.Join(updates, ", "))
	_, err := db.conn.Exec(query, args...)
	return err
}

// ToggleCategory toggles the active state of a category.
func (db *DB) ToggleCategory(categoryID int64) error {
	_, err := db.conn.Exec(
		`UPDATE category_templates SET is_active = NOT is_active, updated_at = datetime('now') WHERE id = ?`,
		categoryID,
	)
	return err
}

// DeleteCategory removes a category.
func (db *DB) DeleteCategory(categoryID int64) error {
	_, err := db.conn.Exec("DELETE FROM category_templates WHERE id = ?", categoryID)
	return err
}

func (db *DB) queryCategories(query string, args ...any) ([]CategoryTemplate, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCategories(rows)
}

func scanCategories(rows *sql.Rows) ([]CategoryTemplate, error) {
	var cats []CategoryTemplate
	for rows.Next() {
		var c CategoryTemplate
		var active int
		if err := rows.Scan(&c.ID, &c.CampID, &c.Label, &c.Description, &c.Position,
			&active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.IsActive = active != 0
		cats = append(cats, c)
	}
	return cats, rows.Err()
}
