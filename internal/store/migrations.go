package store

import "strings"

// Statements are idempotent and run in order on every start.
// {{pk}} and {{bool}} are filled in per dialect.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id               {{pk}},
		first_name       TEXT NOT NULL,
		last_name        TEXT NOT NULL DEFAULT '',
		username         TEXT NOT NULL UNIQUE,
		email            TEXT NOT NULL UNIQUE,
		location_state   TEXT NOT NULL DEFAULT '',
		location_city    TEXT NOT NULL DEFAULT '',
		location_country TEXT NOT NULL DEFAULT '',
		profile_picture  TEXT NOT NULL DEFAULT '',
		bio              TEXT NOT NULL DEFAULT '',
		highlight        TEXT NOT NULL DEFAULT '',
		is_verified      {{bool}} NOT NULL DEFAULT FALSE,
		created_at       BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS actions (
		id          {{pk}},
		uuid        TEXT NOT NULL UNIQUE,
		user_id     BIGINT NOT NULL REFERENCES users (id),
		title       TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT '',
		is_verified {{bool}} NOT NULL DEFAULT FALSE,
		is_pinned   {{bool}} NOT NULL DEFAULT FALSE,
		category    TEXT NOT NULL DEFAULT '',
		subcategory TEXT NOT NULL DEFAULT '',
		type        TEXT NOT NULL DEFAULT '',
		subtype     TEXT NOT NULL DEFAULT '',
		created_at  BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_actions_user_id ON actions (user_id)`,
	`CREATE TABLE IF NOT EXISTS chat_history (
		id            {{pk}},
		action_id     BIGINT NOT NULL REFERENCES actions (id),
		role          TEXT NOT NULL,
		content       TEXT NOT NULL,
		response_type TEXT NOT NULL DEFAULT 'text',
		mode          TEXT NOT NULL DEFAULT 'basic',
		created_at    BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_history_action_id ON chat_history (action_id)`,
	`CREATE TABLE IF NOT EXISTS communities (
		id          {{pk}},
		name        TEXT NOT NULL,
		description TEXT NOT NULL,
		link        TEXT NOT NULL DEFAULT '',
		user_id     BIGINT NOT NULL REFERENCES users (id),
		created_at  BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS skills (
		id          {{pk}},
		name        TEXT NOT NULL UNIQUE,
		label       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS action_skills (
		id        {{pk}},
		action_id BIGINT NOT NULL REFERENCES actions (id),
		skill_id  BIGINT NOT NULL REFERENCES skills (id),
		summary   TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_action_skills_action_id ON action_skills (action_id)`,
	`CREATE INDEX IF NOT EXISTS idx_action_skills_skill_id ON action_skills (skill_id)`,
}

func migrations(dialect string) []string {
	r := strings.NewReplacer("{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT", "{{bool}}", "INTEGER")
	if dialect == dialectPostgres {
		r = strings.NewReplacer("{{pk}}", "BIGSERIAL PRIMARY KEY", "{{bool}}", "BOOLEAN")
	}
	out := make([]string, len(schema))
	for i, stmt := range schema {
		out[i] = r.Replace(stmt)
	}
	return out
}
