package models

import (
	"fmt"

	"gorm.io/gorm"
)

// The forum tables are created from explicit DDL instead of AutoMigrate so
// that identifiers come from a source that never hands out a value twice:
// BIGSERIAL sequences on postgres, AUTOINCREMENT on sqlite.
var forumSchema = map[string][]string{
	"postgres": {
		`CREATE TABLE IF NOT EXISTS question (
			id BIGSERIAL PRIMARY KEY,
			subject VARCHAR(200) NOT NULL,
			content TEXT NOT NULL,
			create_date TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS answer (
			id BIGSERIAL PRIMARY KEY,
			content TEXT NOT NULL,
			create_date TIMESTAMP NOT NULL,
			question_id BIGINT NOT NULL REFERENCES question(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_answer_question_id ON answer(question_id);`,
	},
	"sqlite": {
		`CREATE TABLE IF NOT EXISTS question (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subject VARCHAR(200) NOT NULL,
			content TEXT NOT NULL,
			create_date TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS answer (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT NOT NULL,
			create_date TIMESTAMP NOT NULL,
			question_id INTEGER NOT NULL REFERENCES question(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_answer_question_id ON answer(question_id);`,
	},
}

// Migrate creates the forum tables for the dialect behind db and
// auto-migrates the account tables.
func Migrate(db *gorm.DB) error {
	dialect := db.Dialector.Name()
	queries, ok := forumSchema[dialect]
	if !ok {
		return fmt.Errorf("unsupported database dialect %q", dialect)
	}

	for _, q := range queries {
		if err := db.Exec(q).Error; err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	if err := db.AutoMigrate(&User{}); err != nil {
		return fmt.Errorf("failed to migrate users: %w", err)
	}
	return nil
}
