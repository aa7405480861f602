package monitor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Resolve computes the stable identity of a normalized record: the
// key that tracks it across cycles and the content hash that tracks
// its observed version.
func Resolve(record PropertyRecord) Fingerprint {
	fp := Fingerprint{
		ContentHash: contentHash(record),
		Record:      record,
	}
	if record.RecordID != "" {
		fp.Key = record.RecordID
		return fp
	}
	// no native identifier; derive one from address + date. weaker:
	// address formatting drift across cycles can fracture the
	// identity, which rematching partially repairs.
	fp.Key = derivedKey(record)
	fp.Derived = true
	return fp
}

const derivedKeyPrefix = "addr-"

func derivedKey(record PropertyRecord) string {
	h := sha256.New()
	writeField(h, canonicalAddress(record.Address))
	writeField(h, record.Date.Format("2006-01-02"))
	return derivedKeyPrefix + hex.EncodeToString(h.Sum(nil))[:16]
}

// contentHash covers the mutable fields in schema order. Field order
// is fixed here, never by input, so identical records always hash
// identically.
func contentHash(record PropertyRecord) string {
	h := sha256.New()
	writeField(h, string(record.Type))
	if record.Price != nil {
		writeField(h, fmt.Sprintf("%d", *record.Price))
	} else {
		writeField(h, "")
	}
	writeField(h, record.Date.Format("2006-01-02"))
	writeField(h, record.Address)
	return hex.EncodeToString(h.Sum(nil))
}

// length-prefixed so no two field sequences can collide by
// concatenation
func writeField(w io.Writer, value string) {
	fmt.Fprintf(w, "%d:%s;", len(value), value)
}

func canonicalAddress(addr string) string {
	return strings.Join(strings.Fields(strings.ToLower(addr)), " ")
}
