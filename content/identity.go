package content

import (
	"net/url"
	"strings"
)

const upperHex = "0123456789ABCDEF"

// EncodeIdentity percent-encodes a source URL for use as a dedup key. Only
// ASCII letters, digits, "_.-~" and "/" are kept; the scheme separator is
// restored afterwards so keys stay readable.
func EncodeIdentity(raw string) string {
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if keepByte(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&15])
	}
	return strings.ReplaceAll(b.String(), "%3A//", "://")
}

// DecodeIdentity reverses EncodeIdentity. Malformed escapes are left as-is.
func DecodeIdentity(key string) string {
	decoded, err := url.PathUnescape(key)
	if err != nil {
		return key
	}
	return decoded
}

func keepByte(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("_.-~/", c) >= 0
}
