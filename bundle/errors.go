package bundle

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

// ErrChainInvalid is returned when the log slice for a window fails
// verify_chain.
var ErrChainInvalid = errors.New("bundle: log chain slice failed verification")

// ErrInvalidSeal is returned by Verify/Validate when the recomputed
// seal does not match the bundle's declared seal.
var ErrInvalidSeal = errors.New("bundle: seal does not match canonical serialization")

// ErrInvalidWindow is returned when a bundle's window is malformed
// (end before start) or its log entries fall outside the declared
// window.
var ErrInvalidWindow = errors.New("bundle: window is invalid or log entries fall outside it")

// ErrInvalidSchema is returned when required metadata fields are
// missing or the schema_version is unrecognized.
var ErrInvalidSchema = errors.New("bundle: missing or unrecognized schema fields")

// SizeError is returned when a bundle exceeds its size budget even
// after dropping DEBUG/TRACE entries.
type SizeError struct {
	Actual int
	Max    int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("bundle: size %s exceeds budget %s", humanize.Bytes(uint64(e.Actual)), humanize.Bytes(uint64(e.Max)))
}
