package bundle

import (
	"fmt"

	"github.com/SentinelOps-Remote-CI/post-incident-proofs/crypto"
	"github.com/SentinelOps-Remote-CI/post-incident-proofs/logchain"
)

// Verify is the pure, stateless offline check: it unzips archiveBytes,
// re-verifies the log slice, recomputes the canonical bytes and seal,
// and checks size and schema fields, opening no files and holding no
// chain state beyond the archive bytes it was handed.
func Verify(archiveBytes []byte, key []byte, maxMessageBytes uint32, maxBytes int) error {
	b, err := ReadArchive(archiveBytes, maxMessageBytes)
	if err != nil {
		return err
	}
	return Validate(b, key, maxBytes)
}

// Validate re-runs slice verification, canonical serialization, and
// seal computation against an already-assembled bundle and checks size
// and schema fields, returning the specific error variant that fired
// first.
func Validate(b *IncidentBundle, key []byte, maxBytes int) error {
	if b.Metadata["schema_version"] != SchemaVersion {
		return ErrInvalidSchema
	}
	if b.Window.End < b.Window.Start {
		return ErrInvalidWindow
	}
	for _, e := range b.Logs {
		if !b.Window.Contains(e.Timestamp) {
			return ErrInvalidWindow
		}
	}

	// The log slice is verified with the gap-tolerant slice verifier:
	// bundles rarely start at the chain's first entry, and size-budget
	// trimming may have removed DEBUG/TRACE entries from the middle, so
	// counter continuity cannot be demanded — per-entry MAC validity,
	// ordering, and linkage between adjacent survivors can.
	result := logchain.VerifySlice(b.Logs, key)
	if !result.Valid() {
		return fmt.Errorf("%w: %v", ErrChainInvalid, result.Err)
	}

	sizeBytes, seal, err := computeSeal(b)
	if err != nil {
		return fmt.Errorf("bundle: recomputing seal: %w", err)
	}
	if !crypto.ConstantTimeEqual(seal, b.Seal) {
		return ErrInvalidSeal
	}
	if sizeBytes != b.SizeBytes {
		return ErrInvalidSeal
	}
	if sizeBytes > maxBytes {
		return &SizeError{Actual: sizeBytes, Max: maxBytes}
	}
	return nil
}
