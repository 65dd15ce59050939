package upload

import (
	"fmt"
	"strings"
	"time"
)

// keyTimeLayout renders yyyy/MM/dd/HH/mmss; milliseconds are appended separately
const keyTimeLayout = "2006/01/02/15/0405"

// ObjectKey builds <prefix>/yyyy/MM/dd/HH/mmssSSS-<suffix>.ndjson<ext> in UTC.
// suffix must be a six digit number.
func ObjectKey(prefix string, now time.Time, suffix int, ext string) string {
	now = now.UTC()
	ms := now.Nanosecond() / int(time.Millisecond)

	var b strings.Builder
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteByte('/')
	}
	b.WriteString(now.Format(keyTimeLayout))
	fmt.Fprintf(&b, "%03d-%06d.ndjson%s", ms, suffix, ext)
	return b.String()
}

// NormalizePrefix strips leading and trailing slashes
func NormalizePrefix(prefix string) string {
	return strings.Trim(prefix, "/")
}
