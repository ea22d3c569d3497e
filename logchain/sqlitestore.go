package logchain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/SentinelOps-Remote-CI/post-incident-proofs/crypto"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store atop database/sql with the
// modernc.org/sqlite pure-Go driver.
type SQLiteStore struct {
	db          *sql.DB
	maxMsgBytes uint32
}

// OpenSQLiteStore opens or creates a SQLite database at dsn and ensures
// schema and WAL pragmas are set. maxMessageBytes bounds decoded
// message length; pass 0 for DefaultMaxMessageBytes.
func OpenSQLiteStore(dsn string, maxMessageBytes uint32) (*SQLiteStore, error) {
	if maxMessageBytes == 0 {
		maxMessageBytes = DefaultMaxMessageBytes
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("logchain: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("logchain: ping sqlite: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA wal_autocheckpoint=1000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("logchain: set %s: %w", pragma, err)
		}
	}

	const schema = `
CREATE TABLE IF NOT EXISTS entries (
  counter INTEGER PRIMARY KEY,
  ts      INTEGER NOT NULL,
  level   INTEGER NOT NULL,
  msg     BLOB    NOT NULL,
  prevmac BLOB    NOT NULL,
  mac     BLOB    NOT NULL
);
CREATE TABLE IF NOT EXISTS tail (
  id      INTEGER PRIMARY KEY CHECK(id=1),
  counter INTEGER NOT NULL,
  mac     BLOB    NOT NULL,
  sealed  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS checkpoints (
  counter INTEGER PRIMARY KEY,
  mac     BLOB    NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("logchain: create schema: %w", err)
	}

	return &SQLiteStore{db: db, maxMsgBytes: maxMessageBytes}, nil
}

// Append inserts entry, records the optional checkpoint, and publishes
// tail within a single serializable transaction.
func (s *SQLiteStore) Append(entry Entry, tail Tail, checkpoint *Checkpoint) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var maxCounter sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(counter) FROM entries`).Scan(&maxCounter); err != nil {
		return fmt.Errorf("read max counter: %w", err)
	}
	have := uint64(0)
	if maxCounter.Valid {
		have = uint64(maxCounter.Int64)
	}
	if have != entry.Counter-1 {
		return fmt.Errorf("non-contiguous append: have %d, got %d", have, entry.Counter)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entries(counter, ts, level, msg, prevmac, mac) VALUES(?, ?, ?, ?, ?, ?)`,
		entry.Counter, entry.Timestamp, uint8(entry.Level), entry.Message, entry.PrevMAC[:], entry.MAC[:],
	); err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	if checkpoint != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO checkpoints(counter, mac) VALUES(?, ?)
			 ON CONFLICT(counter) DO UPDATE SET mac=excluded.mac`,
			checkpoint.Counter, checkpoint.MAC[:],
		); err != nil {
			return fmt.Errorf("insert checkpoint: %w", err)
		}
	}

	sealed := 0
	if tail.Sealed {
		sealed = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tail(id, counter, mac, sealed) VALUES(1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET counter=excluded.counter, mac=excluded.mac, sealed=excluded.sealed`,
		tail.Counter, tail.MAC[:], sealed,
	); err != nil {
		return fmt.Errorf("update tail: %w", err)
	}

	return tx.Commit()
}

// MarkSealed flips the tail row's sealed flag.
func (s *SQLiteStore) MarkSealed() error {
	res, err := s.db.Exec(`UPDATE tail SET sealed=1 WHERE id=1`)
	if err != nil {
		return fmt.Errorf("mark sealed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark sealed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("logchain: cannot seal an empty chain")
	}
	return nil
}

// Tail returns the published tail row.
func (s *SQLiteStore) Tail() (Tail, bool, error) {
	var tail Tail
	var counter int64
	var macBytes []byte
	var sealed int
	err := s.db.QueryRow(`SELECT counter, mac, sealed FROM tail WHERE id=1`).Scan(&counter, &macBytes, &sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return tail, false, nil
	}
	if err != nil {
		return tail, false, fmt.Errorf("read tail: %w", err)
	}
	if len(macBytes) != crypto.Size {
		return tail, false, fmt.Errorf("logchain: invalid tail mac size %d", len(macBytes))
	}
	tail.Counter = uint64(counter)
	copy(tail.MAC[:], macBytes)
	tail.Sealed = sealed != 0
	return tail, true, nil
}

// Iter streams entries with counter >= fromCounter in ascending order.
func (s *SQLiteStore) Iter(fromCounter uint64) (<-chan Entry, func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	rows, err := s.db.QueryContext(ctx,
		`SELECT counter, ts, level, msg, prevmac, mac FROM entries WHERE counter >= ? ORDER BY counter ASC`,
		fromCounter)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("query entries: %w", err)
	}

	out := make(chan Entry, 64)
	go func() {
		defer close(out)
		defer rows.Close()
		defer cancel()
		for rows.Next() {
			var counter uint64
			var ts int64
			var level uint8
			var msg, prevMACBytes, macBytes []byte
			if err := rows.Scan(&counter, &ts, &level, &msg, &prevMACBytes, &macBytes); err != nil {
				return
			}
			var prevMAC, mac [crypto.Size]byte
			copy(prevMAC[:], prevMACBytes)
			copy(mac[:], macBytes)
			select {
			case out <- Entry{
				Timestamp: uint64(ts),
				Level:     Level(level),
				Message:   msg,
				Counter:   counter,
				PrevMAC:   prevMAC,
				MAC:       mac,
			}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, cancel, nil
}

// CheckpointBefore returns the checkpoint with the greatest counter <=
// counter.
func (s *SQLiteStore) CheckpointBefore(counter uint64) (Checkpoint, bool, error) {
	var cp Checkpoint
	var ctr int64
	var macBytes []byte
	err := s.db.QueryRow(
		`SELECT counter, mac FROM checkpoints WHERE counter <= ? ORDER BY counter DESC LIMIT 1`,
		counter,
	).Scan(&ctr, &macBytes)
	if errors.Is(err, sql.ErrNoRows) {
		return cp, false, nil
	}
	if err != nil {
		return cp, false, fmt.Errorf("read checkpoint: %w", err)
	}
	cp.Counter = uint64(ctr)
	copy(cp.MAC[:], macBytes)
	return cp, true, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
