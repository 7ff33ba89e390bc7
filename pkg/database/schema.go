// Package database holds the storage schema and applies it at startup.
// Every statement is idempotent.
package database

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"github.com/jackc/pgx/v5/pgconn"
)

// CockroachSchema creates the relational tables: calls, chats and meetings
var CockroachSchema = []string{
	`CREATE TABLE IF NOT EXISTS calls (
		call_id      UUID PRIMARY KEY,
		participants UUID[] NOT NULL,
		call_type    STRING NOT NULL CHECK (call_type IN ('audio', 'video')),
		status       STRING NOT NULL DEFAULT 'initiated',
		initiated_at TIMESTAMPTZ NOT NULL,
		started_at   TIMESTAMPTZ,
		ended_at     TIMESTAMPTZ,
		duration     INT NOT NULL DEFAULT 0,
		archived_by  UUID[] NOT NULL DEFAULT ARRAY[]::UUID[],
		updated_at   TIMESTAMPTZ NOT NULL,
		INVERTED INDEX calls_participants_idx (participants),
		INDEX calls_updated_at_idx (updated_at DESC)
	)`,
	`CREATE TABLE IF NOT EXISTS chats (
		chat_id         UUID PRIMARY KEY,
		participants    UUID[] NOT NULL,
		pair_key        STRING NOT NULL UNIQUE,
		last_message_id UUID,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL,
		INVERTED INDEX chats_participants_idx (participants)
	)`,
	`CREATE TABLE IF NOT EXISTS meetings (
		meeting_id        UUID PRIMARY KEY,
		host_id           UUID NOT NULL,
		status            STRING NOT NULL DEFAULT 'scheduled',
		start_time        TIMESTAMPTZ,
		end_time          TIMESTAMPTZ,
		actual_start_time TIMESTAMPTZ,
		actual_end_time   TIMESTAMPTZ,
		created_at        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS meeting_participants (
		meeting_id UUID NOT NULL REFERENCES meetings (meeting_id) ON DELETE CASCADE,
		user_id    UUID NOT NULL,
		joined_at  TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (meeting_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS attachments (
		object_key   STRING PRIMARY KEY,
		owner_id     UUID NOT NULL,
		file_name    STRING NOT NULL,
		file_type    STRING NOT NULL,
		content_type STRING NOT NULL,
		file_size    INT8 NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		INDEX attachments_owner_idx (owner_id, created_at DESC)
	)`,
}

// CassandraSchema creates the message tables. messages is partitioned by
// chat and clustered newest first; undelivered_messages is the replay queue
// keyed by receiver, oldest first.
var CassandraSchema = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		chat_id      uuid,
		created_at   timestamp,
		message_id   uuid,
		sender_id    uuid,
		receiver_id  uuid,
		message_type text,
		content      text,
		files        text,
		delivered    boolean,
		seen         boolean,
		read_at      timestamp,
		read_by      map<uuid, timestamp>,
		edited_at    timestamp,
		PRIMARY KEY ((chat_id), created_at, message_id)
	) WITH CLUSTERING ORDER BY (created_at DESC, message_id ASC)`,
	`CREATE TABLE IF NOT EXISTS messages_by_id (
		message_id uuid PRIMARY KEY,
		chat_id    uuid,
		created_at timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS undelivered_messages (
		receiver_id uuid,
		created_at  timestamp,
		message_id  uuid,
		chat_id     uuid,
		PRIMARY KEY ((receiver_id), created_at, message_id)
	) WITH CLUSTERING ORDER BY (created_at ASC, message_id ASC)`,
	`CREATE TABLE IF NOT EXISTS message_counts (
		chat_id uuid PRIMARY KEY,
		total   counter
	)`,
}

// Execer is satisfied by *pgxpool.Pool and pgx.Tx
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

// MigrateCockroach applies CockroachSchema
func MigrateCockroach(ctx context.Context, db Execer) error {
	for i, stmt := range CockroachSchema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("cockroach schema statement %d: %w", i, err)
		}
	}
	return nil
}

// MigrateCassandra applies CassandraSchema in the session's keyspace
func MigrateCassandra(ctx context.Context, session *gocql.Session) error {
	for i, stmt := range CassandraSchema {
		if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("cassandra schema statement %d: %w", i, err)
		}
	}
	return nil
}
