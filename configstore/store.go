// Package configstore persists the placement configuration blobs pushed by
// the ads platform and serves them as immutable snapshots.
//
// Each family (ads, amp, prefill, ...) is one JSON blob. Every write gets a
// new generation id. Readers never see a half-applied update: a Holder swaps
// the whole parsed Snapshot at once on Refresh.
package configstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hazyhaar/adinject/dbopen"
	"github.com/hazyhaar/adinject/idgen"
)

// Schema creates the blob table.
const Schema = `
CREATE TABLE IF NOT EXISTS config_blobs (
	family     TEXT PRIMARY KEY,
	generation TEXT NOT NULL,
	raw        TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

var (
	// ErrNotFound is returned by Get for a family that was never stored.
	ErrNotFound = errors.New("configstore: not found")

	// ErrUnknownFamily is returned for family names outside Families.
	ErrUnknownFamily = errors.New("configstore: unknown family")

	// ErrInvalidJSON is returned by Put when the blob is not valid JSON.
	ErrInvalidJSON = errors.New("configstore: invalid json")
)

// Family names one configuration blob.
type Family string

const (
	FamilyAds          Family = "ads"
	FamilyRefreshRates Family = "ads_refresh_rates"
	FamilyAMP          Family = "amp"
	FamilyPrefill      Family = "prefill"
	FamilyFbia         Family = "fbia"
	FamilyConnatix     Family = "connatix"
)

// Families lists every family a Snapshot is built from.
var Families = []Family{FamilyAds, FamilyRefreshRates, FamilyAMP, FamilyPrefill, FamilyFbia, FamilyConnatix}

// Valid reports whether f is a known family.
func (f Family) Valid() bool {
	for _, k := range Families {
		if f == k {
			return true
		}
	}
	return false
}

// Blob is one stored family.
type Blob struct {
	Family     Family    `json:"family"`
	Generation string    `json:"generation"`
	Raw        []byte    `json:"-"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store reads and writes config_blobs.
type Store struct {
	DB    *sql.DB
	NewID idgen.Generator
}

// New returns a Store over db with prefixed UUIDv7 generation ids.
func New(db *sql.DB) *Store {
	return &Store{DB: db, NewID: idgen.Prefixed("gen_", idgen.UUIDv7())}
}

// Init creates the schema if needed.
func (s *Store) Init(ctx context.Context) error {
	if _, err := dbopen.Exec(ctx, s.DB, Schema); err != nil {
		return fmt.Errorf("configstore: init: %w", err)
	}
	return nil
}

// Put stores raw as the current blob of family and returns it with its new
// generation. An empty raw clears the family to an empty object.
func (s *Store) Put(ctx context.Context, family Family, raw []byte) (Blob, error) {
	if !family.Valid() {
		return Blob{}, fmt.Errorf("%w: %q", ErrUnknownFamily, family)
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if !gjson.ValidBytes(raw) {
		return Blob{}, fmt.Errorf("%w: family %s", ErrInvalidJSON, family)
	}

	b := Blob{Family: family, Generation: s.NewID(), Raw: raw, UpdatedAt: time.Now().UTC()}
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO config_blobs (family, generation, raw, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(family) DO UPDATE SET
				generation = excluded.generation,
				raw        = excluded.raw,
				updated_at = excluded.updated_at`,
			string(b.Family), b.Generation, string(b.Raw), b.UpdatedAt.UnixMilli())
		return err
	})
	if err != nil {
		return Blob{}, fmt.Errorf("configstore: put %s: %w", family, err)
	}
	return b, nil
}

// Get returns the stored blob of family.
func (s *Store) Get(ctx context.Context, family Family) (Blob, error) {
	if !family.Valid() {
		return Blob{}, fmt.Errorf("%w: %q", ErrUnknownFamily, family)
	}
	var (
		b       Blob
		raw     string
		updated int64
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT family, generation, raw, updated_at FROM config_blobs WHERE family = ?`,
		string(family)).Scan(&b.Family, &b.Generation, &raw, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Blob{}, fmt.Errorf("%w: %s", ErrNotFound, family)
	}
	if err != nil {
		return Blob{}, fmt.Errorf("configstore: get %s: %w", family, err)
	}
	b.Raw = []byte(raw)
	b.UpdatedAt = time.UnixMilli(updated).UTC()
	return b, nil
}

// List returns every stored blob ordered by family.
func (s *Store) List(ctx context.Context) ([]Blob, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT family, generation, raw, updated_at FROM config_blobs ORDER BY family`)
	if err != nil {
		return nil, fmt.Errorf("configstore: list: %w", err)
	}
	defer rows.Close()

	var out []Blob
	for rows.Next() {
		var (
			b       Blob
			raw     string
			updated int64
		)
		if err := rows.Scan(&b.Family, &b.Generation, &raw, &updated); err != nil {
			return nil, fmt.Errorf("configstore: list scan: %w", err)
		}
		b.Raw = []byte(raw)
		b.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

// Load reads every family and parses them into a Snapshot. Missing families
// parse as empty configs.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	blobs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	raw := make(map[Family][]byte, len(blobs))
	var latest Blob
	for _, b := range blobs {
		if !b.Family.Valid() {
			continue
		}
		raw[b.Family] = b.Raw
		if b.UpdatedAt.After(latest.UpdatedAt) {
			latest = b
		}
	}
	snap := Parse(raw)
	snap.Generation = latest.Generation
	return snap, nil
}
