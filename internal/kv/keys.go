package kv

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Key prefixes. Each prefix ends with '|' as a separator.
const (
	PrefixData = "d|" // d|{label:8BE}{seq:4BE}
	PrefixMeta = "m|" // m|{name}
)

// EncodedKeyLen is the length of an encoded Key without its store prefix.
const EncodedKeyLen = 12

// Key is the compound ordering token of a queue entry. Label is a coarse
// time bucket (wall-clock milliseconds at the last generator refresh) and Seq
// a counter within that bucket. The encoded form sorts like (Label, Seq).
type Key struct {
	Label uint64
	Seq   uint32
}

// IsZero reports whether k is the zero key. The zero key sorts before every
// generated key and is the default peek/scan start bookmark.
func (k Key) IsZero() bool {
	return k.Label == 0 && k.Seq == 0
}

// Compare returns -1, 0 or +1 following the encoded byte order.
func (k Key) Compare(o Key) int {
	switch {
	case k.Label < o.Label:
		return -1
	case k.Label > o.Label:
		return 1
	case k.Seq < o.Seq:
		return -1
	case k.Seq > o.Seq:
		return 1
	}
	return 0
}

// Less reports whether k sorts before o.
func (k Key) Less(o Key) bool {
	return k.Compare(o) < 0
}

// String renders k as "label:seq".
func (k Key) String() string {
	return strconv.FormatUint(k.Label, 10) + ":" + strconv.FormatUint(uint64(k.Seq), 10)
}

// AppendKey appends the 12-byte encoding of k to dst: {label:8BE}{seq:4BE}.
func AppendKey(dst []byte, k Key) []byte {
	dst = PutUint64BE(dst, k.Label)
	return PutUint32BE(dst, k.Seq)
}

// DecodeKey decodes a 12-byte key encoding.
func DecodeKey(b []byte) (Key, error) {
	if len(b) != EncodedKeyLen {
		return Key{}, fmt.Errorf("decode key: want %d bytes, got %d", EncodedKeyLen, len(b))
	}
	return Key{Label: GetUint64BE(b[:8]), Seq: GetUint32BE(b[8:])}, nil
}

// ParseKey parses the "label:seq" form produced by Key.String.
func ParseKey(s string) (Key, error) {
	label, seq, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Key{}, fmt.Errorf("parse key %q: expected label:seq", s)
	}
	l, err := strconv.ParseUint(label, 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("parse key label %q: %w", label, err)
	}
	q, err := strconv.ParseUint(seq, 10, 32)
	if err != nil {
		return Key{}, fmt.Errorf("parse key seq %q: %w", seq, err)
	}
	return Key{Label: l, Seq: uint32(q)}, nil
}

// DataKey returns the store key for a queue entry: d|{label:8BE}{seq:4BE}
func DataKey(k Key) []byte {
	b := make([]byte, 0, len(PrefixData)+EncodedKeyLen)
	b = append(b, PrefixData...)
	return AppendKey(b, k)
}

// DataPrefix returns the scan prefix for all queue entries: d|
func DataPrefix() []byte {
	return []byte(PrefixData)
}

// KeyFromData extracts the Key from a data store key.
func KeyFromData(b []byte) (Key, error) {
	if !bytes.HasPrefix(b, []byte(PrefixData)) {
		return Key{}, fmt.Errorf("decode data key: missing %q prefix", PrefixData)
	}
	return DecodeKey(b[len(PrefixData):])
}

// KeygenMetaKey returns the store key holding the highest generated key
// persisted so far, encoded as {label:8BE}{seq:4BE}.
func KeygenMetaKey() []byte {
	return []byte(PrefixMeta + "keygen")
}
