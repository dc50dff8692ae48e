// Package filename extracts the capture time embedded in image filenames.
//
// Images are named like G16_conus_band13_20240101T013000Z.png: the capture time
// is the first "_YYYYMMDDTHHMMSSZ" group found anywhere in the name.
package filename

import (
	"regexp"
	"time"
)

var stampRe = regexp.MustCompile(`_(\d{8})T(\d{6})Z`)

// Format returns the embedded capture time as "YYYY-MM-DD HH:MM:SS UTC", or ""
// when the name carries no timestamp. Digit groups are copied as-is, so an
// out-of-range value such as month 13 is still formatted.
func Format(name string) string {
	d, t, ok := groups(name)
	if !ok {
		return ""
	}
	return d[0:4] + "-" + d[4:6] + "-" + d[6:8] + " " +
		t[0:2] + ":" + t[2:4] + ":" + t[4:6] + " UTC"
}

// Parse returns the embedded capture time in UTC. It reports false when the
// name has no timestamp or the digits do not form a valid time.
func Parse(name string) (time.Time, bool) {
	d, t, ok := groups(name)
	if !ok {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation("20060102150405", d+t, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func groups(name string) (date, clock string, ok bool) {
	m := stampRe.FindStringSubmatch(name)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
