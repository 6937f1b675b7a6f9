package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/elviscgn/UkweliDB/internal/crypto"
	"github.com/elviscgn/UkweliDB/internal/record"
)

// ReadAll returns every stored record in chain order, id ascending, with its
// signatures attached in the order they were written. It does not
// independently verify the row's hash against its payload -- that is
// verify()'s job, recomputing record.Record.Digest() against the chain and
// reporting any mismatch as a chain_break, the taxonomy member §8 actually
// names for this condition.
func (s *Store) ReadAll() ([]record.Record, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, previous_hash, entity_id, workflow_name, action_name, payload, hash
		FROM records
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read all: query records: %w", err)
	}
	defer rows.Close()

	var records []record.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read all: iterate records: %w", err)
	}

	for i := range records {
		sigs, err := s.readSignatures(records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].Signatures = sigs
	}

	if records == nil {
		records = []record.Record{}
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (record.Record, error) {
	var r record.Record
	var previousHash, hash []byte

	if err := rows.Scan(
		&r.ID, &r.Timestamp, &previousHash, &r.EntityID,
		&r.Workflow.WorkflowName, &r.Workflow.ActionName, &r.Payload,
		&hash,
	); err != nil {
		return record.Record{}, fmt.Errorf("scan record: %w", err)
	}

	prev, ok := crypto.DigestFromBytes(previousHash)
	if !ok {
		return record.Record{}, fmt.Errorf("scan record %d: malformed previous_hash", r.ID)
	}
	r.PreviousHash = prev

	h, ok := crypto.DigestFromBytes(hash)
	if !ok {
		return record.Record{}, fmt.Errorf("scan record %d: malformed hash", r.ID)
	}
	r.Hash = h

	return r, nil
}

func (s *Store) readSignatures(recordID uint64) ([]record.Signature, error) {
	rows, err := s.db.Query(`
		SELECT signer, signature
		FROM signatures
		WHERE record_id = ?
		ORDER BY seq ASC
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("read signatures for record %d: %w", recordID, err)
	}
	defer rows.Close()

	var sigs []record.Signature
	for rows.Next() {
		var sig record.Signature
		if err := rows.Scan(&sig.Signer, &sig.Bytes); err != nil {
			return nil, fmt.Errorf("scan signature for record %d: %w", recordID, err)
		}
		sigs = append(sigs, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signatures for record %d: %w", recordID, err)
	}
	return sigs, nil
}
