package gallery

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

var ErrNoSnapshot = errors.New("gallery cache holds no snapshot")

// Store is the on-disk gallery cache. Every Save writes a new snapshot; Load
// reads the newest one.
type Store struct {
	db   *sql.DB
	path string
}

func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create cache directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open gallery cache")
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}

	s := &Store{db: db, path: path}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) runMigrations() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id TEXT PRIMARY KEY,
			dim INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			embedding BLOB NOT NULL,
			PRIMARY KEY (snapshot_id, position)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Save(ctx context.Context, g *Gallery) (string, error) {
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "begin snapshot")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, dim, created_at) VALUES (?, ?, ?)`,
		id, g.Dim(), time.Now().UnixNano(),
	); err != nil {
		return "", errors.Wrap(err, "insert snapshot")
	}

	for i, e := range g.entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entries (snapshot_id, position, name, embedding) VALUES (?, ?, ?, ?)`,
			id, i, e.Name, encodeEmbedding(e.Embedding),
		); err != nil {
			return "", errors.Wrapf(err, "insert entry %q", e.Name)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "commit snapshot")
	}
	return id, nil
}

func (s *Store) Load(ctx context.Context) (*Gallery, error) {
	var id string
	var dim int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, dim FROM snapshots ORDER BY created_at DESC LIMIT 1`,
	).Scan(&id, &dim)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSnapshot
		}
		return nil, errors.Wrap(err, "query snapshot")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, embedding FROM entries WHERE snapshot_id = ? ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query entries")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var name string
		var blob []byte
		if err := rows.Scan(&name, &blob); err != nil {
			return nil, errors.Wrap(err, "scan entry")
		}
		emb, err := decodeEmbedding(blob)
		if err != nil {
			return nil, errors.Wrapf(err, "entry %q", name)
		}
		entries = append(entries, Entry{Name: name, Embedding: emb})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "read entries")
	}

	g, err := New(entries)
	if err != nil {
		return nil, errors.Wrapf(err, "snapshot %s", id)
	}
	if g.Dim() != dim {
		return nil, errors.Errorf("snapshot %s: embedding length %d, recorded %d", id, g.Dim(), dim)
	}
	return g, nil
}

func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeEmbedding(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, errors.Errorf("embedding blob has %d bytes", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
