package store

import "fmt"

// The schema is applied with CREATE ... IF NOT EXISTS at startup so a fresh
// binary is self-contained. The safety invariants live here as constraints:
// one approval per decision, one execution per approval, one open issue per
// (category, resource).

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS detection_events (
	id            BIGSERIAL PRIMARY KEY,
	source        TEXT NOT NULL,
	resource_type TEXT NOT NULL DEFAULT '',
	resource_name TEXT NOT NULL,
	category      TEXT NOT NULL,
	metric_name   TEXT NOT NULL DEFAULT '',
	metric_value  DOUBLE PRECISION NOT NULL CHECK (metric_value >= 0),
	metric_unit   TEXT NOT NULL DEFAULT '',
	severity      TEXT NOT NULL,
	context       TEXT NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS issues (
	id                BIGSERIAL PRIMARY KEY,
	category          TEXT NOT NULL,
	resource_type     TEXT NOT NULL DEFAULT '',
	resource_name     TEXT NOT NULL,
	severity          TEXT NOT NULL,
	status            TEXT NOT NULL,
	status_rank       INT NOT NULL DEFAULT 0,
	first_event_id    BIGINT NOT NULL REFERENCES detection_events(id),
	last_event_id     BIGINT NOT NULL REFERENCES detection_events(id),
	occurrence_count  BIGINT NOT NULL DEFAULT 1,
	first_detected_at TIMESTAMPTZ NOT NULL,
	last_detected_at  TIMESTAMPTZ NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS issues_open_dedupe
	ON issues (category, resource_name)
	WHERE status NOT IN ('resolved', 'declined');

CREATE TABLE IF NOT EXISTS analyses (
	id                    BIGSERIAL PRIMARY KEY,
	issue_id              BIGINT NOT NULL REFERENCES issues(id),
	hypothesis            TEXT NOT NULL,
	confidence            NUMERIC(3,2) NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
	factors               TEXT NOT NULL DEFAULT '[]',
	recommended_action_id BIGINT,
	model_version         TEXT NOT NULL DEFAULT '',
	status                TEXT NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS actions (
	id                 BIGSERIAL PRIMARY KEY,
	name               TEXT NOT NULL UNIQUE,
	category           TEXT NOT NULL,
	risk_level         TEXT NOT NULL,
	command_template   TEXT NOT NULL,
	params             TEXT NOT NULL DEFAULT '[]',
	rollback_available BOOLEAN NOT NULL DEFAULT FALSE,
	enabled            BOOLEAN NOT NULL DEFAULT TRUE,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
	id          BIGSERIAL PRIMARY KEY,
	issue_id    BIGINT NOT NULL REFERENCES issues(id),
	analysis_id BIGINT NOT NULL REFERENCES analyses(id),
	action_id   BIGINT NOT NULL REFERENCES actions(id),
	confidence  NUMERIC(3,2) NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
	rationale   TEXT NOT NULL,
	status      TEXT NOT NULL,
	proposed_by TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS approvals (
	id          BIGSERIAL PRIMARY KEY,
	decision_id BIGINT NOT NULL UNIQUE REFERENCES decisions(id),
	approver_id TEXT NOT NULL,
	verdict     TEXT NOT NULL,
	reason_code TEXT NOT NULL DEFAULT '',
	notes       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS executions (
	id                 BIGSERIAL PRIMARY KEY,
	approval_id        BIGINT NOT NULL UNIQUE REFERENCES approvals(id),
	decision_id        BIGINT NOT NULL REFERENCES decisions(id),
	action_id          BIGINT NOT NULL REFERENCES actions(id),
	issue_id           BIGINT NOT NULL REFERENCES issues(id),
	status             TEXT NOT NULL,
	outcome            TEXT,
	params             TEXT NOT NULL DEFAULT '{}',
	started_at         TIMESTAMPTZ,
	finished_at        TIMESTAMPTZ,
	duration_ms        BIGINT NOT NULL DEFAULT 0,
	affected_count     BIGINT NOT NULL DEFAULT 0,
	error_detail       TEXT NOT NULL DEFAULT '',
	rollback_available BOOLEAN NOT NULL DEFAULT FALSE,
	created_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS learning_records (
	id                     BIGSERIAL PRIMARY KEY,
	issue_id               BIGINT NOT NULL REFERENCES issues(id),
	execution_id           BIGINT REFERENCES executions(id),
	resolved               BOOLEAN NOT NULL,
	improvement_percent    DOUBLE PRECISION,
	confidence_at_decision DOUBLE PRECISION,
	time_to_resolution_ms  BIGINT NOT NULL DEFAULT 0,
	side_effects           BOOLEAN NOT NULL DEFAULT FALSE,
	notes                  TEXT NOT NULL DEFAULT '',
	created_at             TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id          BIGSERIAL PRIMARY KEY,
	actor_id    TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL,
	resource    TEXT NOT NULL DEFAULT '',
	resource_id TEXT NOT NULL DEFAULT '',
	details     TEXT NOT NULL DEFAULT '{}',
	ip          TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);
`

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS detection_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	source        TEXT NOT NULL,
	resource_type TEXT NOT NULL DEFAULT '',
	resource_name TEXT NOT NULL,
	category      TEXT NOT NULL,
	metric_name   TEXT NOT NULL DEFAULT '',
	metric_value  REAL NOT NULL CHECK (metric_value >= 0),
	metric_unit   TEXT NOT NULL DEFAULT '',
	severity      TEXT NOT NULL,
	context       TEXT NOT NULL DEFAULT '{}',
	created_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS issues (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	category          TEXT NOT NULL,
	resource_type     TEXT NOT NULL DEFAULT '',
	resource_name     TEXT NOT NULL,
	severity          TEXT NOT NULL,
	status            TEXT NOT NULL,
	status_rank       INTEGER NOT NULL DEFAULT 0,
	first_event_id    INTEGER NOT NULL REFERENCES detection_events(id),
	last_event_id     INTEGER NOT NULL REFERENCES detection_events(id),
	occurrence_count  INTEGER NOT NULL DEFAULT 1,
	first_detected_at TIMESTAMP NOT NULL,
	last_detected_at  TIMESTAMP NOT NULL,
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS issues_open_dedupe
	ON issues (category, resource_name)
	WHERE status NOT IN ('resolved', 'declined');

CREATE TABLE IF NOT EXISTS analyses (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	issue_id              INTEGER NOT NULL REFERENCES issues(id),
	hypothesis            TEXT NOT NULL,
	confidence            REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
	factors               TEXT NOT NULL DEFAULT '[]',
	recommended_action_id INTEGER,
	model_version         TEXT NOT NULL DEFAULT '',
	status                TEXT NOT NULL,
	created_at            TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS actions (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	name               TEXT NOT NULL UNIQUE,
	category           TEXT NOT NULL,
	risk_level         TEXT NOT NULL,
	command_template   TEXT NOT NULL,
	params             TEXT NOT NULL DEFAULT '[]',
	rollback_available BOOLEAN NOT NULL DEFAULT 0,
	enabled            BOOLEAN NOT NULL DEFAULT 1,
	created_at         TIMESTAMP NOT NULL,
	updated_at         TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	issue_id    INTEGER NOT NULL REFERENCES issues(id),
	analysis_id INTEGER NOT NULL REFERENCES analyses(id),
	action_id   INTEGER NOT NULL REFERENCES actions(id),
	confidence  REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
	rationale   TEXT NOT NULL,
	status      TEXT NOT NULL,
	proposed_by TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS approvals (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	decision_id INTEGER NOT NULL UNIQUE REFERENCES decisions(id),
	approver_id TEXT NOT NULL,
	verdict     TEXT NOT NULL,
	reason_code TEXT NOT NULL DEFAULT '',
	notes       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS executions (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	approval_id        INTEGER NOT NULL UNIQUE REFERENCES approvals(id),
	decision_id        INTEGER NOT NULL REFERENCES decisions(id),
	action_id          INTEGER NOT NULL REFERENCES actions(id),
	issue_id           INTEGER NOT NULL REFERENCES issues(id),
	status             TEXT NOT NULL,
	outcome            TEXT,
	params             TEXT NOT NULL DEFAULT '{}',
	started_at         TIMESTAMP,
	finished_at        TIMESTAMP,
	duration_ms        INTEGER NOT NULL DEFAULT 0,
	affected_count     INTEGER NOT NULL DEFAULT 0,
	error_detail       TEXT NOT NULL DEFAULT '',
	rollback_available BOOLEAN NOT NULL DEFAULT 0,
	created_at         TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS learning_records (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	issue_id               INTEGER NOT NULL REFERENCES issues(id),
	execution_id           INTEGER REFERENCES executions(id),
	resolved               BOOLEAN NOT NULL,
	improvement_percent    REAL,
	confidence_at_decision REAL,
	time_to_resolution_ms  INTEGER NOT NULL DEFAULT 0,
	side_effects           BOOLEAN NOT NULL DEFAULT 0,
	notes                  TEXT NOT NULL DEFAULT '',
	created_at             TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	actor_id    TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL,
	resource    TEXT NOT NULL DEFAULT '',
	resource_id TEXT NOT NULL DEFAULT '',
	details     TEXT NOT NULL DEFAULT '{}',
	ip          TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL
);
`

func (s *DB) migrate() error {
	schema := schemaSQLite
	if s.driver == DriverPostgres {
		schema = schemaPostgres
	}
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
