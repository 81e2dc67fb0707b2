package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// NormalizeFilename derives a stable anonymized identity from a dotted
// filename. "forge1.rkt.bak.2" becomes "forge1.rkt.<hash>" where the hash
// covers the dot-joined trailing segments ("bak.2"). The hash is the first
// 8 bytes of SHA-256, hex encoded, so normalized names are reproducible
// across process restarts. Fewer than two segments is an error.
func NormalizeFilename(name string) (string, error) {
	parts := strings.Split(name, ".")
	if len(parts) < 2 {
		return "", fmt.Errorf("%w: %q", ErrMalformedFilename, name)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts[2:], ".")))
	return parts[0] + "." + parts[1] + "." + hex.EncodeToString(sum[:8]), nil
}

// NormalizePayload walks a decoded JSON value and normalizes every
// "filename" key in place, for dead-lettering raw payloads without leaking
// real filenames. Arrays are traversed element-wise; objects are checked
// for a string "filename" key and are not descended into further.
func NormalizePayload(v any) error {
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			if err := NormalizePayload(item); err != nil {
				return err
			}
		}
	case map[string]any:
		name, ok := val["filename"].(string)
		if !ok {
			return nil
		}
		fixed, err := NormalizeFilename(name)
		if err != nil {
			return err
		}
		val["filename"] = fixed
	}
	return nil
}
