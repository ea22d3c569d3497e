// Package logchain implements the tamper-evident log chain: an
// append-only, MAC-linked sequence of entries with a fast, restartable
// verifier. Any modification, insertion, deletion, or reordering of
// entries after they were appended surfaces as a verification
// failure.
package logchain

import (
	"encoding/binary"
	"fmt"

	"github.com/SentinelOps-Remote-CI/post-incident-proofs/crypto"
)

// Level is a log severity, encoded as a single byte on the wire.
type Level uint8

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return fmt.Sprintf("LEVEL(%d)", uint8(l))
	}
}

// ValidLevel reports whether l is one of the six declared levels.
func ValidLevel(l Level) bool { return l <= LevelFatal }

// DefaultMaxMessageBytes is the default maximum LogEntry message
// length.
const DefaultMaxMessageBytes = 64 * 1024

// Entry is one record in a LogChain.
//
//	mac = MAC(key, encode(timestamp, level, message, counter, prev_mac))
//
// where prev_mac is the MAC of the previous entry, or 32 zero bytes for
// the first entry in the chain. Timestamp is wall-clock nanoseconds
// since the Unix epoch; sub-second resolution keeps regression checks
// meaningful at the rate entries are actually produced.
type Entry struct {
	Timestamp uint64
	Level     Level
	Message   []byte
	Counter   uint64
	PrevMAC   [crypto.Size]byte
	MAC       [crypto.Size]byte
}

// signedFields returns the byte chunks that are MAC'd to produce the
// entry's MAC, in wire order. Splitting the fields rather than
// concatenating them into one buffer first both avoids an extra
// allocation and removes any ambiguity between field boundaries (see
// crypto.MAC's doc comment).
func signedFields(ts uint64, level Level, message []byte, counter uint64, prevMAC [crypto.Size]byte) [][]byte {
	var tsBuf, ctrBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], ts)
	binary.BigEndian.PutUint64(ctrBuf[:], counter)
	return [][]byte{tsBuf[:], {byte(level)}, message, ctrBuf[:], prevMAC[:]}
}

// computeMAC computes the MAC for an entry with the given fields under key.
func computeMAC(key []byte, ts uint64, level Level, message []byte, counter uint64, prevMAC [crypto.Size]byte) [crypto.Size]byte {
	return crypto.MAC(key, signedFields(ts, level, message, counter, prevMAC)...)
}

// Verify recomputes e's MAC under key and reports whether it matches
// e.MAC, in constant time.
func (e Entry) Verify(key []byte) bool {
	want := computeMAC(key, e.Timestamp, e.Level, e.Message, e.Counter, e.PrevMAC)
	return crypto.ConstantTimeEqual(want, e.MAC)
}

// headerSize is the fixed-size portion of the wire encoding preceding
// the variable-length message: u64 ts | u8 level | u64 counter | u32 msg_len.
const headerSize = 8 + 1 + 8 + 4

// tagsSize is the combined size of the trailing prev_mac and mac fields.
const tagsSize = crypto.Size + crypto.Size

// EncodedSize returns the number of bytes e occupies on the wire.
func (e Entry) EncodedSize() int {
	return headerSize + len(e.Message) + tagsSize
}

// Encode appends e's wire representation to dst and returns the
// result:
//
//	u64 timestamp | u8 level | u64 counter | u32 msg_len | bytes message | 32B prev_mac | 32B mac
func (e Entry) Encode(dst []byte) []byte {
	var buf [headerSize]byte
	binary.BigEndian.PutUint64(buf[0:8], e.Timestamp)
	buf[8] = byte(e.Level)
	binary.BigEndian.PutUint64(buf[9:17], e.Counter)
	binary.BigEndian.PutUint32(buf[17:21], uint32(len(e.Message)))
	dst = append(dst, buf[:]...)
	dst = append(dst, e.Message...)
	dst = append(dst, e.PrevMAC[:]...)
	dst = append(dst, e.MAC[:]...)
	return dst
}

// DecodeEntry decodes one Entry from the front of src and returns it
// along with the number of bytes consumed. maxMessageBytes bounds
// msg_len to guard against a corrupt or malicious length prefix causing
// an unbounded allocation.
func DecodeEntry(src []byte, maxMessageBytes uint32) (Entry, int, error) {
	if len(src) < headerSize {
		return Entry{}, 0, fmt.Errorf("logchain: short header: have %d bytes, need %d", len(src), headerSize)
	}
	ts := binary.BigEndian.Uint64(src[0:8])
	level := Level(src[8])
	counter := binary.BigEndian.Uint64(src[9:17])
	msgLen := binary.BigEndian.Uint32(src[17:21])
	if msgLen > maxMessageBytes {
		return Entry{}, 0, fmt.Errorf("logchain: message length %d exceeds max %d", msgLen, maxMessageBytes)
	}
	need := headerSize + int(msgLen) + tagsSize
	if len(src) < need {
		return Entry{}, 0, fmt.Errorf("logchain: short record: have %d bytes, need %d", len(src), need)
	}
	msg := append([]byte(nil), src[headerSize:headerSize+int(msgLen)]...)
	var prevMAC, mac [crypto.Size]byte
	copy(prevMAC[:], src[headerSize+int(msgLen):])
	copy(mac[:], src[headerSize+int(msgLen)+crypto.Size:])
	return Entry{
		Timestamp: ts,
		Level:     level,
		Message:   msg,
		Counter:   counter,
		PrevMAC:   prevMAC,
		MAC:       mac,
	}, need, nil
}
