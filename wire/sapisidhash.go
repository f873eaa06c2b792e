package wire

import (
	"crypto/sha1" //nolint:gosec // SAPISIDHASH is defined over SHA-1 by the upstream protocol
	"encoding/hex"
	"fmt"
)

// SAPISIDHash computes the "SAPISIDHASH " authorization header value defined
// in §4.3: unixSeconds + "_" + hex(sha1(unixSeconds + " " + sapisid + " " +
// origin)). origin is the scheme+host of the target service (e.g.
// "https://chat.google.com").
func SAPISIDHash(unixSeconds int64, sapisid, origin string) string {
	preimage := fmt.Sprintf("%d %s %s", unixSeconds, sapisid, origin)
	sum := sha1.Sum([]byte(preimage)) //nolint:gosec
	return fmt.Sprintf("SAPISIDHASH %d_%s", unixSeconds, hex.EncodeToString(sum[:]))
}
