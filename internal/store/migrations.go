package store

// migration is a versioned schema change applied in order at startup.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version    INTEGER PRIMARY KEY,
	applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS interactions (
	id             TEXT PRIMARY KEY,
	sender_id      TEXT NOT NULL,
	receiver_id    TEXT NOT NULL,
	type           TEXT NOT NULL,
	status         TEXT NOT NULL,
	subject        TEXT NOT NULL DEFAULT '',
	content        TEXT NOT NULL DEFAULT '',
	message_id     TEXT NOT NULL DEFAULT '',
	thread_id      TEXT NOT NULL DEFAULT '',
	failure_reason TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL,
	sent_at        DATETIME,
	delivered_at   DATETIME,
	read_at        DATETIME,
	replied_at     DATETIME,
	rescued_at     DATETIME,
	failed_at      DATETIME
);

CREATE INDEX IF NOT EXISTS idx_interactions_status ON interactions(status);
CREATE INDEX IF NOT EXISTS idx_interactions_sender ON interactions(sender_id);
CREATE INDEX IF NOT EXISTS idx_interactions_receiver ON interactions(receiver_id);
CREATE INDEX IF NOT EXISTS idx_interactions_message ON interactions(message_id);
CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions(created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS cross_send_results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	total       INTEGER NOT NULL,
	successful  INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	payload     TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
