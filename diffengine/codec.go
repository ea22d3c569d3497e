package diffengine

import (
	"encoding/binary"
	"fmt"
)

// EncodeDiff serializes d to the wire format used by VersionLog and by
// the bundle package's archive layout for /state/diffs.bin.
func EncodeDiff(d Diff) ([]byte, error) { return encodeDiff(d) }

// DecodeDiff is the inverse of EncodeDiff.
func DecodeDiff(src []byte) (Diff, error) { return decodeDiff(src) }

// DecodeState is the inverse of State.Encode, exported for the bundle
// package's archive reader to reconstruct snapshots from raw bytes.
func DecodeState(src []byte) (*State, error) { return decodeState(src) }

// decodeState parses the format produced by State.Encode.
func decodeState(src []byte) (*State, error) {
	s := NewState()
	r := byteReader{buf: src}

	for !r.empty() {
		id, err := r.readBytes()
		if err != nil {
			return nil, fmt.Errorf("read id: %w", err)
		}
		blob, err := r.readBytes()
		if err != nil {
			return nil, fmt.Errorf("read blob: %w", err)
		}
		s.blobs[string(id)] = blob

		metaCount, err := r.readUint32()
		if err != nil {
			return nil, fmt.Errorf("read meta count: %w", err)
		}
		if metaCount > 0 {
			kv := make(map[string]string, metaCount)
			for i := uint32(0); i < metaCount; i++ {
				k, err := r.readBytes()
				if err != nil {
					return nil, fmt.Errorf("read meta key: %w", err)
				}
				v, err := r.readBytes()
				if err != nil {
					return nil, fmt.Errorf("read meta value: %w", err)
				}
				kv[string(k)] = string(v)
			}
			s.meta[string(id)] = kv
		}
	}
	return s, nil
}

// byteReader is a minimal cursor over a length-prefixed byte stream,
// shared by decodeState and decodeDiff.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) empty() bool { return r.pos >= len(r.buf) }

func (r *byteReader) readUint32() (uint32, error) {
	if len(r.buf)-r.pos < 4 {
		return 0, fmt.Errorf("short read")
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *byteReader) readByte() (byte, error) {
	if len(r.buf)-r.pos < 1 {
		return 0, fmt.Errorf("short read")
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *byteReader) readBytes() ([]byte, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	if uint32(len(r.buf)-r.pos) < n {
		return nil, fmt.Errorf("short read: need %d, have %d", n, len(r.buf)-r.pos)
	}
	out := append([]byte(nil), r.buf[r.pos:r.pos+int(n)]...)
	r.pos += int(n)
	return out, nil
}

// encodeDiff serializes a Diff, recursing through Compose. Layout:
//
//	u8 kind | u32 id_len | id | u32 old_len | old | u32 new_len | new
//	  | u32 metakey_len | metakey | u32 metaval_len | metaval
//	  | [left diff, if Compose] | [right diff, if Compose]
func encodeDiff(d Diff) ([]byte, error) {
	var out []byte
	putBytes := func(b []byte) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
		out = append(out, lenBuf[:]...)
		out = append(out, b...)
	}

	out = append(out, byte(d.Kind))
	putBytes([]byte(d.ID))
	putBytes(d.Old)
	putBytes(d.New)
	putBytes([]byte(d.MetaKey))
	putBytes([]byte(d.MetaVal))

	if d.Kind == KindCompose {
		if d.Left == nil || d.Right == nil {
			return nil, fmt.Errorf("compose diff missing sub-diff")
		}
		left, err := encodeDiff(*d.Left)
		if err != nil {
			return nil, err
		}
		right, err := encodeDiff(*d.Right)
		if err != nil {
			return nil, err
		}
		putBytes(left)
		putBytes(right)
	}
	return out, nil
}

func decodeDiff(src []byte) (Diff, error) {
	r := byteReader{buf: src}
	return decodeDiffFrom(&r)
}

func decodeDiffFrom(r *byteReader) (Diff, error) {
	var d Diff
	kindByte, err := r.readByte()
	if err != nil {
		return d, fmt.Errorf("read kind: %w", err)
	}
	d.Kind = Kind(kindByte)

	id, err := r.readBytes()
	if err != nil {
		return d, fmt.Errorf("read id: %w", err)
	}
	d.ID = string(id)

	if d.Old, err = r.readBytes(); err != nil {
		return d, fmt.Errorf("read old: %w", err)
	}
	if d.New, err = r.readBytes(); err != nil {
		return d, fmt.Errorf("read new: %w", err)
	}
	metaKey, err := r.readBytes()
	if err != nil {
		return d, fmt.Errorf("read metakey: %w", err)
	}
	d.MetaKey = string(metaKey)
	metaVal, err := r.readBytes()
	if err != nil {
		return d, fmt.Errorf("read metaval: %w", err)
	}
	d.MetaVal = string(metaVal)

	if d.Kind == KindCompose {
		leftBytes, err := r.readBytes()
		if err != nil {
			return d, fmt.Errorf("read left: %w", err)
		}
		rightBytes, err := r.readBytes()
		if err != nil {
			return d, fmt.Errorf("read right: %w", err)
		}
		left, err := decodeDiff(leftBytes)
		if err != nil {
			return d, fmt.Errorf("decode left: %w", err)
		}
		right, err := decodeDiff(rightBytes)
		if err != nil {
			return d, fmt.Errorf("decode right: %w", err)
		}
		d.Left = &left
		d.Right = &right
	}
	return d, nil
}
