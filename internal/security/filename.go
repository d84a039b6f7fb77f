// Package security cleans user supplied names before they reach response
// headers or the file system.
package security

import (
	"path"
	"strings"
)

// unsafeRunes are rejected by common file systems or break a quoted
// Content-Disposition filename.
const unsafeRunes = `"*:<>?|`

// SanitizeFilename reduces a user supplied export name to a base name.
// Directory parts, control characters and leading or trailing dots are
// removed. A name the user gave an extension keeps it; any other name gets
// .tif. Names with nothing usable left become empty, which callers treat as
// "use the default".
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	name = path.Base(name)
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(unsafeRunes, r) {
			return -1
		}
		return r
	}, name)
	name = strings.Trim(strings.TrimSpace(name), ".")
	if name == "" || name == "/" {
		return ""
	}
	if hasExtension(name) {
		return name
	}
	return name + ".tif"
}

// hasExtension reports whether name ends in a dot and one or more ASCII
// letters or digits.
func hasExtension(name string) bool {
	ext := path.Ext(name)
	if len(ext) < 2 {
		return false
	}
	for _, r := range ext[1:] {
		if !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9') {
			return false
		}
	}
	return true
}
