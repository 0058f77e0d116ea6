package util

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Fingerprint computes a stable hash for a finding. Line numbers are left out so a
// baseline survives edits elsewhere in the file; key should name what the finding is
// about (an account, the offending expression).
func Fingerprint(ruleID, file, function, key string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", ruleID, file, function, strings.Join(strings.Fields(key), " "))
	return hex.EncodeToString(h.Sum(nil))[:32]
}
