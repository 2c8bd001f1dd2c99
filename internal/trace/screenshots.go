package trace

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// IsScreenshot reports whether name has a recognised image extension.
func IsScreenshot(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// ListScreenshots returns the sorted image paths in dir. With recursive set,
// subdirectories are walked as well. A missing dir yields an error.
func ListScreenshots(dir string, recursive bool) ([]string, error) {
	var out []string
	if !recursive {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && IsScreenshot(e.Name()) {
				out = append(out, filepath.Join(dir, e.Name()))
			}
		}
		return out, nil
	}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsScreenshot(d.Name()) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

var timestampPatterns = []struct {
	re     *regexp.Regexp
	layout string // empty = Unix epoch
}{
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}`), "2006-01-02_15-04-05"},
	{regexp.MustCompile(`\d{8}_\d{6}`), "20060102_150405"},
	{regexp.MustCompile(`\d{10,13}`), ""},
}

// TimestampFromName extracts a capture time from a screenshot file name.
// Recognised forms, tried in order: YYYY-MM-DD_HH-MM-SS, YYYYMMDD_HHMMSS
// (both local time), and a Unix epoch of 10 digits (seconds) or 11-13
// digits (milliseconds).
func TimestampFromName(name string) (time.Time, bool) {
	base := filepath.Base(name)
	for _, p := range timestampPatterns {
		m := p.re.FindString(base)
		if m == "" {
			continue
		}
		if p.layout != "" {
			t, err := time.ParseInLocation(p.layout, m, time.Local)
			if err != nil {
				continue
			}
			return t, true
		}
		n, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		if len(m) > 10 {
			return time.UnixMilli(n), true
		}
		return time.Unix(n, 0), true
	}
	return time.Time{}, false
}

// ScreenshotTime returns the capture time encoded in the file name, falling
// back to the file's modification time, or the zero time if neither exists.
func ScreenshotTime(path string) time.Time {
	if t, ok := TimestampFromName(path); ok {
		return t
	}
	if info, err := os.Stat(path); err == nil {
		return info.ModTime()
	}
	return time.Time{}
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseLogTimestamp parses an action-log timestamp: epoch seconds (possibly
// fractional) or an ISO-8601 date-time. Zone-less forms are local time.
func ParseLogTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec), true
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FindClosestScreenshot returns the image in dir whose capture time is
// nearest to ts and no more than maxDiff away. Ties keep the first file in
// name order.
func FindClosestScreenshot(dir string, ts time.Time, maxDiff time.Duration) (string, bool) {
	shots, err := ListScreenshots(dir, false)
	if err != nil || len(shots) == 0 {
		return "", false
	}
	best := ""
	bestDiff := time.Duration(1<<63 - 1)
	for _, p := range shots {
		d := ScreenshotTime(p).Sub(ts)
		if d < 0 {
			d = -d
		}
		if d < bestDiff && d <= maxDiff {
			best, bestDiff = p, d
		}
	}
	return best, best != ""
}
