package postgres

// migration is one named, ordered group of schema statements.
type migration struct {
	name       string
	statements []string
}

var migrations = []migration{
	{
		name: "001_create_jobs_table",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS tempo_jobs (
				id              TEXT PRIMARY KEY,
				name            TEXT NOT NULL,
				data            BYTEA,
				status          TEXT NOT NULL DEFAULT 'pending',
				scheduled_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				executed_at     TIMESTAMPTZ,
				completed_at    TIMESTAMPTZ,
				error_message   TEXT NOT NULL DEFAULT '',
				attempts        INTEGER NOT NULL DEFAULT 0,
				priority        INTEGER NOT NULL DEFAULT 2,
				max_retries     INTEGER NOT NULL DEFAULT 3,
				retry_delay     BIGINT NOT NULL DEFAULT 0,
				timeout         BIGINT NOT NULL DEFAULT 0,
				user_id         TEXT NOT NULL DEFAULT '',
				created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tempo_jobs_due
				ON tempo_jobs (priority DESC, scheduled_at ASC)
				WHERE status = 'pending'`,
			`CREATE INDEX IF NOT EXISTS idx_tempo_jobs_user
				ON tempo_jobs (user_id, status)`,
			`CREATE INDEX IF NOT EXISTS idx_tempo_jobs_status
				ON tempo_jobs (status)`,
		},
	},
	{
		name: "002_create_schedules_table",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS tempo_schedules (
				id               TEXT PRIMARY KEY,
				name             TEXT NOT NULL,
				data             BYTEA,
				cron_expression  TEXT NOT NULL,
				user_id          TEXT NOT NULL DEFAULT '',
				priority         INTEGER NOT NULL DEFAULT 2,
				max_retries      INTEGER NOT NULL DEFAULT 3,
				retry_delay      BIGINT NOT NULL DEFAULT 0,
				timeout          BIGINT NOT NULL DEFAULT 0,
				last_executed_at TIMESTAMPTZ,
				is_active        BOOLEAN NOT NULL DEFAULT TRUE,
				created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tempo_schedules_active
				ON tempo_schedules (is_active)`,
			`CREATE INDEX IF NOT EXISTS idx_tempo_schedules_user
				ON tempo_schedules (user_id)`,
		},
	},
}
