package historystore

import (
	"context"
	"database/sql"
	"time"

	"propwatch-backend/lib/historystore/db"
)

// Entry is the durable trace of one real-world property record.
// There is exactly one entry per (county, key); it is mutated in
// place on updates and never deleted automatically.
type Entry struct {
	County       string
	Key          string
	ContentHash  string
	RecordType   string
	Derived      bool
	RecordJSON   []byte
	FirstSeen    time.Time
	LastSeen     time.Time
	LastNotified *time.Time
	Removed      bool
}

type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

// Schema is exposed so tests and the db opener can initialize
// fresh databases.
func Schema() string {
	return db.Schema
}

const entryColumns = `county, key, content_hash, record_type, derived, record_json, first_seen, last_seen, last_notified, removed`

func scanEntry(row interface{ Scan(...any) error }) (Entry, error) {
	var e Entry
	var derived, removed int64
	var recordJSON sql.NullString
	var firstSeen, lastSeen int64
	var lastNotified sql.NullInt64

	err := row.Scan(
		&e.County, &e.Key, &e.ContentHash, &e.RecordType,
		&derived, &recordJSON, &firstSeen, &lastSeen,
		&lastNotified, &removed,
	)
	if err != nil {
		return Entry{}, err
	}

	e.Derived = derived != 0
	e.Removed = removed != 0
	if recordJSON.Valid {
		e.RecordJSON = []byte(recordJSON.String)
	}
	e.FirstSeen = time.Unix(firstSeen, 0).UTC()
	e.LastSeen = time.Unix(lastSeen, 0).UTC()
	if lastNotified.Valid {
		t := time.Unix(lastNotified.Int64, 0).UTC()
		e.LastNotified = &t
	}
	return e, nil
}

// Get returns nil when no entry exists for the key.
func (s Store) Get(ctx context.Context, county, key string) (*Entry, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+entryColumns+` FROM history_entries WHERE county = ? AND key = ?`,
		county, key,
	)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListActive returns every entry in the county that has not been
// flagged removed, ordered ascending by key.
func (s Store) ListActive(ctx context.Context, county string) ([]Entry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+entryColumns+` FROM history_entries WHERE county = ? AND removed = 0 ORDER BY key ASC`,
		county,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Tx wraps a transaction scope over the store. All mutations of a
// county cycle go through one Tx so a cancelled cycle commits either
// the whole county or nothing.
type Tx struct {
	tx *sql.Tx
}

func (s Store) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = fn(Tx{tx: tx})
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (t Tx) Insert(ctx context.Context, e Entry) error {
	derived := 0
	if e.Derived {
		derived = 1
	}
	var lastNotified any
	if e.LastNotified != nil {
		lastNotified = e.LastNotified.Unix()
	}
	_, err := t.tx.ExecContext(
		ctx,
		`INSERT INTO history_entries
		(county, key, content_hash, record_type, derived, record_json, first_seen, last_seen, last_notified, removed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		e.County, e.Key, e.ContentHash, e.RecordType, derived,
		string(e.RecordJSON), e.FirstSeen.Unix(), e.LastSeen.Unix(), lastNotified,
	)
	return err
}

// UpdateContent replaces the mutable half of an entry after an
// observed change. first_seen is never touched.
func (t Tx) UpdateContent(ctx context.Context, county, key, contentHash, recordType string, recordJSON []byte, seenAt time.Time) error {
	_, err := t.tx.ExecContext(
		ctx,
		`UPDATE history_entries
		SET content_hash = ?, record_type = ?, record_json = ?, last_seen = ?, removed = 0
		WHERE county = ? AND key = ?`,
		contentHash, recordType, string(recordJSON), seenAt.Unix(), county, key,
	)
	return err
}

// Touch advances last_seen for a repeat observation.
func (t Tx) Touch(ctx context.Context, county, key string, seenAt time.Time) error {
	_, err := t.tx.ExecContext(
		ctx,
		`UPDATE history_entries SET last_seen = ?, removed = 0 WHERE county = ? AND key = ?`,
		seenAt.Unix(), county, key,
	)
	return err
}

// MarkRemoved flags an entry so its disappearance is only reported
// once. The entry itself is retained for audit.
func (t Tx) MarkRemoved(ctx context.Context, county, key string) error {
	_, err := t.tx.ExecContext(
		ctx,
		`UPDATE history_entries SET removed = 1 WHERE county = ? AND key = ?`,
		county, key,
	)
	return err
}

// Rekey moves an entry to a new key, used when a derived key is
// re-attached to a drifted address. The old entry row carries its
// first_seen forward.
func (t Tx) Rekey(ctx context.Context, county, oldKey, newKey string) error {
	_, err := t.tx.ExecContext(
		ctx,
		`UPDATE history_entries SET key = ? WHERE county = ? AND key = ?`,
		newKey, county, oldKey,
	)
	return err
}

func (s Store) MarkNotified(ctx context.Context, county, key string, at time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE history_entries SET last_notified = ? WHERE county = ? AND key = ?`,
		at.Unix(), county, key,
	)
	return err
}

type Stats struct {
	Total    int64
	Notified int64
	Removed  int64
	ByCounty map[string]int64
	ByType   map[string]int64
}

func (s Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		ByCounty: map[string]int64{},
		ByType:   map[string]int64{},
	}

	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*),
			COUNT(last_notified),
			SUM(removed)
		FROM history_entries`,
	)
	var removed sql.NullInt64
	err := row.Scan(&stats.Total, &stats.Notified, &removed)
	if err != nil {
		return Stats{}, err
	}
	stats.Removed = removed.Int64

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT county, COUNT(*) FROM history_entries GROUP BY county`,
	)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var county string
		var count int64
		if err := rows.Scan(&county, &count); err != nil {
			return Stats{}, err
		}
		stats.ByCounty[county] = count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	typeRows, err := s.db.QueryContext(
		ctx,
		`SELECT record_type, COUNT(*) FROM history_entries GROUP BY record_type`,
	)
	if err != nil {
		return Stats{}, err
	}
	defer typeRows.Close()
	for typeRows.Next() {
		var recordType string
		var count int64
		if err := typeRows.Scan(&recordType, &count); err != nil {
			return Stats{}, err
		}
		stats.ByType[recordType] = count
	}
	return stats, typeRows.Err()
}
