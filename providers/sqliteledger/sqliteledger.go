// Package sqliteledger implements the consent ledger and its secondary index
// on SQLite.
//
// The ledger is an append-only table where every row carries a SHA3-256
// digest chained over the previous row's digest, so any rewrite of history
// breaks the chain for every later entry. VerifyChain walks the chain and
// reports the first divergence. Replication and consensus are out of scope;
// tamper evidence here means detection, not prevention.
package sqliteledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/sha3"

	"github.com/hengadev/phivault"
)

const digestSize = 32

const schema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	subledger TEXT NOT NULL,
	contents BLOB NOT NULL,
	prev_digest BLOB NOT NULL,
	digest BLOB NOT NULL,
	appended_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_subledger ON ledger_entries(subledger, seq);

CREATE TABLE IF NOT EXISTS consent_index (
	partition_key TEXT NOT NULL,
	patient_id TEXT NOT NULL,
	tx_id TEXT NOT NULL,
	ts_utc TEXT NOT NULL,
	PRIMARY KEY (partition_key, patient_id)
);
`

// Store implements both phivault.Ledger and phivault.ConsentIndex over one
// SQLite database.
type Store struct {
	db        *sql.DB
	subledger string
}

// Open opens (creating if necessary) the ledger database at path. Entries
// are appended under the given subledger name; an empty subledger falls back
// to phivault.DefaultSubledger.
func Open(path, subledger string) (*Store, error) {
	if subledger == "" {
		subledger = phivault.DefaultSubledger
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating ledger directory %q: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening ledger database %q: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing ledger schema: %w", err)
	}
	return &Store{db: db, subledger: subledger}, nil
}

// OpenInMemory opens a throwaway in-memory ledger, for tests.
func OpenInMemory(subledger string) (*Store, error) {
	if subledger == "" {
		subledger = phivault.DefaultSubledger
	}
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory ledger: %w", err)
	}
	// Every pooled connection would otherwise see its own empty database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing ledger schema: %w", err)
	}
	return &Store{db: db, subledger: subledger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func chainDigest(prev, contents []byte) []byte {
	h := sha3.New256()
	h.Write(prev)
	h.Write(contents)
	return h.Sum(nil)
}

// Append durably appends payload to the subledger and returns its
// transaction id, of the form "{subledger}.{seq}". The row is committed
// before Append returns.
func (s *Store) Append(ctx context.Context, payload []byte) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%w: beginning append: %v", phivault.ErrLedgerUnavailable, err)
	}
	defer tx.Rollback()

	prev := make([]byte, digestSize)
	row := tx.QueryRowContext(ctx, `
		SELECT digest FROM ledger_entries
		WHERE subledger = ?
		ORDER BY seq DESC LIMIT 1`, s.subledger)
	if err := row.Scan(&prev); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: reading chain head: %v", phivault.ErrLedgerUnavailable, err)
	}

	digest := chainDigest(prev, payload)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (subledger, contents, prev_digest, digest, appended_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.subledger, payload, prev, digest, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("%w: appending entry: %v", phivault.ErrLedgerUnavailable, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("%w: resolving sequence: %v", phivault.ErrLedgerUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%w: committing append: %v", phivault.ErrLedgerUnavailable, err)
	}
	return fmt.Sprintf("%s.%d", s.subledger, seq), nil
}

// Read returns the entry recorded under the given transaction id, failing
// with phivault.ErrNotFound if no such entry exists.
func (s *Store) Read(ctx context.Context, transactionID string) (phivault.LedgerEntry, error) {
	subledger, seq, err := parseTransactionID(transactionID)
	if err != nil {
		return phivault.LedgerEntry{}, err
	}
	var contents []byte
	row := s.db.QueryRowContext(ctx, `
		SELECT contents FROM ledger_entries
		WHERE subledger = ? AND seq = ?`, subledger, seq)
	if err := row.Scan(&contents); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return phivault.LedgerEntry{}, fmt.Errorf("%w: ledger entry %q", phivault.ErrNotFound, transactionID)
		}
		return phivault.LedgerEntry{}, fmt.Errorf("%w: reading entry %q: %v", phivault.ErrLedgerUnavailable, transactionID, err)
	}
	return phivault.LedgerEntry{TransactionID: transactionID, Contents: contents}, nil
}

// VerifyChain recomputes every digest in the subledger. It returns the
// sequence number of the first entry whose digest does not match, or 0 when
// the chain is intact.
func (s *Store) VerifyChain(ctx context.Context) (int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, contents, prev_digest, digest FROM ledger_entries
		WHERE subledger = ?
		ORDER BY seq ASC`, s.subledger)
	if err != nil {
		return 0, fmt.Errorf("%w: reading chain: %v", phivault.ErrLedgerUnavailable, err)
	}
	defer rows.Close()

	prev := make([]byte, digestSize)
	for rows.Next() {
		var (
			seq                          int64
			contents, prevStored, digest []byte
		)
		if err := rows.Scan(&seq, &contents, &prevStored, &digest); err != nil {
			return 0, fmt.Errorf("%w: scanning chain: %v", phivault.ErrLedgerUnavailable, err)
		}
		expected := chainDigest(prev, contents)
		if !bytesEqual(prevStored, prev) || !bytesEqual(digest, expected) {
			return seq, fmt.Errorf("ledger chain broken at %s.%d", s.subledger, seq)
		}
		prev = digest
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("%w: walking chain: %v", phivault.ErrLedgerUnavailable, err)
	}
	return 0, nil
}

func parseTransactionID(transactionID string) (string, int64, error) {
	i := strings.LastIndex(transactionID, ".")
	if i <= 0 || i == len(transactionID)-1 {
		return "", 0, fmt.Errorf("%w: malformed transaction id %q", phivault.ErrNotFound, transactionID)
	}
	seq, err := strconv.ParseInt(transactionID[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: malformed transaction id %q", phivault.ErrNotFound, transactionID)
	}
	return transactionID[:i], seq, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Insert records a consent pointer. It is conditional: a second insert for
// the same (partition, patient) fails with phivault.ErrAlreadyExists and
// leaves the first pointer untouched, so two racing consent creations cannot
// both land a pointer.
func (s *Store) Insert(ctx context.Context, partition string, rec phivault.ConsentPointer) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO consent_index (partition_key, patient_id, tx_id, ts_utc)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (partition_key, patient_id) DO NOTHING`,
		partition, rec.PatientID, rec.TransactionID, rec.TimestampUTC.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting consent pointer for %q: %w", rec.PatientID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting consent pointer for %q: %w", rec.PatientID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: consent pointer for %q", phivault.ErrAlreadyExists, rec.PatientID)
	}
	return nil
}

// Get returns the consent pointer for a patient, failing with
// phivault.ErrNotFound if none has been recorded.
func (s *Store) Get(ctx context.Context, partition, patientID string) (phivault.ConsentPointer, error) {
	var (
		txID string
		ts   string
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT tx_id, ts_utc FROM consent_index
		WHERE partition_key = ? AND patient_id = ?`, partition, patientID)
	if err := row.Scan(&txID, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return phivault.ConsentPointer{}, fmt.Errorf("%w: consent pointer for %q", phivault.ErrNotFound, patientID)
		}
		return phivault.ConsentPointer{}, fmt.Errorf("reading consent pointer for %q: %w", patientID, err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return phivault.ConsentPointer{}, fmt.Errorf("parsing consent timestamp for %q: %w", patientID, err)
	}
	return phivault.ConsentPointer{PatientID: patientID, TransactionID: txID, TimestampUTC: parsed}, nil
}
