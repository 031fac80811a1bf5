package stringutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// ParseDuration parses a timeout value. A bare decimal integer counts
// seconds, so "010" is ten seconds. Anything else needs a unit: "1.5" is
// rejected while "1.5m" and "1h30m" are accepted.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return 0, fmt.Errorf("%q needs a unit (e.g. 90s, 1.5m)", s)
	}
	return cast.ToDurationE(s)
}
