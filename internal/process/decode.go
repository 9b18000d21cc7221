package process

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decode converts process output to a string, replacing invalid UTF-8
// sequences with U+FFFD. It never fails.
func Decode(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	out, _, err := transform.Bytes(unicode.UTF8.NewDecoder(), b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	return string(out)
}
