package proto

import (
	"fmt"
	"strconv"
	"strings"
)

// HardenedOffset marks a hardened BIP32 path component.
const HardenedOffset uint32 = 0x80000000

// ParsePath parses a BIP32 derivation path such as m/84'/0'/0' or
// m/44h/1729h/0h/0h. An empty path or "m" yields no components.
func ParsePath(path string) ([]uint32, error) {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "m")
	path = strings.TrimPrefix(path, "M")
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil, nil
	}

	parts := strings.Split(path, "/")
	out := make([]uint32, 0, len(parts))
	for _, part := range parts {
		hardened := strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h") || strings.HasSuffix(part, "H")
		part = strings.TrimRight(part, "'hH")
		value, err := strconv.ParseUint(part, 10, 31)
		if err != nil {
			return nil, fmt.Errorf("invalid derivation path component %q", part)
		}
		index := uint32(value)
		if hardened {
			index += HardenedOffset
		}
		out = append(out, index)
	}
	return out, nil
}

// FormatPath renders components as m/a'/b/... using marker for hardened
// components. With prefix unset the leading "m/" is omitted.
func FormatPath(components []uint32, marker string, prefix bool) string {
	var sb strings.Builder
	if prefix {
		sb.WriteString("m")
	}
	for i, c := range components {
		if prefix || i > 0 {
			sb.WriteString("/")
		}
		if c >= HardenedOffset {
			sb.WriteString(strconv.FormatUint(uint64(c-HardenedOffset), 10))
			sb.WriteString(marker)
		} else {
			sb.WriteString(strconv.FormatUint(uint64(c), 10))
		}
	}
	return sb.String()
}
