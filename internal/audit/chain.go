package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeHash derives the chain hash for an event. The digest covers the
// previous row's hash plus every payload field, pipe-delimited in a fixed
// order. Changing any field, reordering rows, or deleting a row invalidates
// every later hash. Returns "" when key is empty; rows written without a key
// stay unverifiable rather than carrying a forgeable unkeyed digest.
func ComputeHash(key []byte, prevHash string, e Event) string {
	if len(key) == 0 {
		return ""
	}
	payload := fmt.Sprintf("%s|%d|%s|%s|%s|%s|%s|%v",
		prevHash, e.Timestamp, e.User, e.Action, e.Resource, e.Details, e.IP, e.Success)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
