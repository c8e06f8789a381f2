// Package codec encodes the persisted key-value map and the tagged
// value variants stored inside it.
//
// Map blob format:
//
//	┌───────────┬──────────┬───────────┬────────────┬───────────┬─────────────┬─────────────┐
//	│ Magic (4B)│ Ver (1B) │ Count (4B)│ KeyLen (4B)│ Key (var) │ ValLen (4B) │ Value (var) │
//	└───────────┴──────────┴───────────┴────────────┴───────────┴─────────────┴─────────────┘
//
//	- Magic: "SKVB" (big-endian uint32)
//	- Ver: format version, currently 1
//	- Count: number of entries (big-endian uint32)
//	- Entries repeat KeyLen/Key/ValLen/Value, keys sorted ascending
//
// All integers are big-endian. The format carries no encryption and no
// platform metadata, so any external tool implementing the same layout
// can read a store file directly.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"
)

// BlobMagic identifies a serialized map blob ("SKVB").
const BlobMagic uint32 = 0x534B5642

// BlobVersion is the current map blob format version.
const BlobVersion byte = 1

const blobHeaderLen = 9 // magic + version + count

var (
	// ErrMalformed reports a blob that is not a validly formatted map.
	ErrMalformed = errors.New("codec: malformed map blob")

	// ErrTypeMismatch reports a blob that decoded to something other
	// than a string-keyed byte map.
	ErrTypeMismatch = errors.New("codec: blob is not a string-keyed byte map")

	// ErrUnsupported reports a value that cannot be represented by any
	// codec variant.
	ErrUnsupported = errors.New("codec: unsupported value")
)

// EncodeMap serializes m into a single self-describing blob. Keys are
// written in sorted order so equal maps produce identical blobs.
func EncodeMap(m map[string][]byte) ([]byte, error) {
	keys := make([]string, 0, len(m))
	size := blobHeaderLen
	for k, v := range m {
		if k == "" {
			return nil, fmt.Errorf("%w: empty key", ErrTypeMismatch)
		}
		if !utf8.ValidString(k) {
			return nil, fmt.Errorf("%w: key is not valid UTF-8", ErrTypeMismatch)
		}
		keys = append(keys, k)
		size += 8 + len(k) + len(v)
	}
	sort.Strings(keys)

	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint32(buf, BlobMagic)
	buf = append(buf, BlobVersion)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(keys)))
	for _, k := range keys {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(k)))
		buf = append(buf, k...)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(m[k])))
		buf = append(buf, m[k]...)
	}
	return buf, nil
}

// DecodeMap parses a blob produced by EncodeMap. It returns ErrMalformed
// for blobs that do not follow the format and ErrTypeMismatch for blobs
// whose entries are not valid string-keyed byte values.
func DecodeMap(data []byte) (map[string][]byte, error) {
	if len(data) < blobHeaderLen {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformed, len(data))
	}
	if magic := binary.BigEndian.Uint32(data[0:4]); magic != BlobMagic {
		return nil, fmt.Errorf("%w: bad magic 0x%08X", ErrMalformed, magic)
	}
	if ver := data[4]; ver != BlobVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, ver)
	}
	count := binary.BigEndian.Uint32(data[5:9])

	m := make(map[string][]byte, count)
	off := blobHeaderLen
	for i := uint32(0); i < count; i++ {
		key, rest, err := readChunk(data, off)
		if err != nil {
			return nil, err
		}
		val, next, err := readChunk(data, rest)
		if err != nil {
			return nil, err
		}
		ks := string(key)
		if ks == "" || !utf8.ValidString(ks) {
			return nil, fmt.Errorf("%w: entry %d has an invalid key", ErrTypeMismatch, i)
		}
		if _, dup := m[ks]; dup {
			return nil, fmt.Errorf("%w: duplicate key %q", ErrTypeMismatch, ks)
		}
		m[ks] = val
		off = next
	}
	if off != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(data)-off)
	}
	return m, nil
}

// readChunk reads one length-prefixed byte chunk starting at off and
// returns the chunk plus the offset just past it.
func readChunk(data []byte, off int) ([]byte, int, error) {
	if off+4 > len(data) {
		return nil, 0, fmt.Errorf("%w: truncated length prefix at offset %d", ErrMalformed, off)
	}
	n := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	if n < 0 || off+n > len(data) {
		return nil, 0, fmt.Errorf("%w: chunk of %d bytes overruns blob at offset %d", ErrMalformed, n, off)
	}
	chunk := make([]byte, n)
	copy(chunk, data[off:off+n])
	return chunk, off + n, nil
}
