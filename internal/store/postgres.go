package store

import (
	"database/sql"
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Open connects to Postgres and applies pending schema migrations.
func Open(url string) (*sql.DB, error) {
	db := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(url)))

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := migrate.Exec(db, "postgres", migrations, migrate.Up); err != nil {
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	return db, nil
}

var migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "1_create_conversations",
			Up: []string{`
				CREATE TABLE IF NOT EXISTS conversations (
					id BIGSERIAL PRIMARY KEY,
					user_id TEXT NOT NULL,
					title TEXT NOT NULL DEFAULT '',
					provider TEXT NOT NULL,
					model TEXT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT now()
				);
				CREATE INDEX IF NOT EXISTS conversations_user_id_idx ON conversations (user_id);
			`},
			Down: []string{`DROP TABLE IF EXISTS conversations;`},
		},
		{
			Id: "2_create_messages",
			Up: []string{`
				CREATE TABLE IF NOT EXISTS messages (
					id BIGSERIAL PRIMARY KEY,
					conversation_id BIGINT NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
					role TEXT NOT NULL,
					content TEXT NOT NULL,
					images TEXT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT now()
				);
				CREATE INDEX IF NOT EXISTS messages_conversation_id_idx ON messages (conversation_id);
			`},
			Down: []string{`DROP TABLE IF EXISTS messages;`},
		},
	},
}
