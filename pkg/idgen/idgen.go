// Package idgen generates random identifiers.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"
)

// Hex returns 2*numBytes random hex characters.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// RecordID returns a storage id in the 24-char hex format the resolver
// recognizes as an internal id.
func RecordID() string {
	return Hex(12)
}

var recordIDPattern = regexp.MustCompile(`^[0-9a-f]{24}$`)

func IsRecordID(s string) bool {
	return recordIDPattern.MatchString(s)
}

// EntryID returns a ledger entry id built from the clock, the owner and a
// random component: TXN-<unix millis>-<user suffix>-<8 hex>.
func EntryID(now time.Time, userID string) string {
	suffix := userID
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return fmt.Sprintf("TXN-%d-%s-%s", now.UnixMilli(), suffix, Hex(4))
}
