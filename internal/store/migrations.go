package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	user_id    TEXT NOT NULL,
	id         TEXT NOT NULL,
	type       TEXT NOT NULL DEFAULT 'system',
	title      TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	link       TEXT NOT NULL DEFAULT '',
	is_read    INTEGER NOT NULL DEFAULT 0 CHECK(is_read IN (0, 1)),
	created_at DATETIME NOT NULL,
	position   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, id)
);

CREATE INDEX IF NOT EXISTS idx_notifications_user_position
	ON notifications(user_id, position);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS messages (
	user_id        TEXT NOT NULL,
	id             TEXT NOT NULL,
	sender_id      TEXT NOT NULL,
	sender_name    TEXT NOT NULL DEFAULT '',
	sender_email   TEXT NOT NULL DEFAULT '',
	receiver_id    TEXT NOT NULL,
	receiver_name  TEXT NOT NULL DEFAULT '',
	receiver_email TEXT NOT NULL DEFAULT '',
	product_id     TEXT NOT NULL DEFAULT '',
	product_name   TEXT NOT NULL DEFAULT '',
	text           TEXT NOT NULL,
	is_read        INTEGER NOT NULL DEFAULT 0 CHECK(is_read IN (0, 1)),
	created_at     DATETIME NOT NULL,
	PRIMARY KEY (user_id, id)
);

CREATE INDEX IF NOT EXISTS idx_messages_user_created
	ON messages(user_id, created_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
