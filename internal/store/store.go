package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"pushtalk/device/internal/types"
)

// Store persists at most one session record across process death. Writes
// are synchronous; a caller may rely on the record being on disk before
// any network action it issues afterwards.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS session (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	channel_id   TEXT NOT NULL,
	access_token TEXT NOT NULL,
	local_uid    TEXT NOT NULL,
	remote_name  TEXT NOT NULL,
	remote_photo TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	state        TEXT NOT NULL
);`

// Open opens (or creates) the store at path. WAL keeps readers cheap;
// synchronous=FULL keeps the JOINING-before-join ordering crash-durable.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_synchronous=FULL")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// Single daemon process, single writer.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns the persisted session, or nil if none exists. Callers treat
// an error the same as nil (fail closed, never resume unknown state).
func (s *Store) Get() (*types.Session, error) {
	row := s.db.QueryRow(`SELECT channel_id, access_token, local_uid, remote_name, remote_photo, created_at, state FROM session WHERE id = 1`)
	var sess types.Session
	var createdAt int64
	var state string
	err := row.Scan(&sess.ChannelID, &sess.AccessToken, &sess.LocalUID, &sess.RemoteName, &sess.RemotePhoto, &createdAt, &state)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	sess.CreatedAt = time.Unix(createdAt, 0).UTC()
	sess.State = types.SessionState(state)
	return &sess, nil
}

// Put writes the session, replacing any existing record. The CHECK(id=1)
// constraint makes more than one record impossible at the schema level.
func (s *Store) Put(sess *types.Session) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO session
		(id, channel_id, access_token, local_uid, remote_name, remote_photo, created_at, state)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ChannelID, sess.AccessToken, sess.LocalUID, sess.RemoteName,
		sess.RemotePhoto, sess.CreatedAt.Unix(), string(sess.State))
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	log.Debug().Str("channel_id", sess.ChannelID).Str("state", string(sess.State)).Msg("session persisted")
	return nil
}

// Clear deletes the record unconditionally. Clearing an empty store is not
// an error.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM session`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *Store) Ping() error {
	return s.db.Ping()
}

func (s *Store) Close() error {
	return s.db.Close()
}
