package format

import (
	"fmt"
	"time"
)

// Percent renders a 0-100 percentage with two decimals.
func Percent(p float64) string {
	return fmt.Sprintf("%.2f%%", p)
}

// Ratio renders "covered/total".
func Ratio(n, total int) string {
	return fmt.Sprintf("%d/%d", n, total)
}

// Similarity renders a cosine similarity with four decimals.
func Similarity(s float64) string {
	return fmt.Sprintf("%.4f", s)
}

// Duration formats a duration as "Xm Ys" or "Ys"; sub-second values as ms.
func Duration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	s := int(d.Seconds())
	if s >= 60 {
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	}
	return fmt.Sprintf("%ds", s)
}

// Truncate shortens s to maxLen bytes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// BoolMark returns "✓" for true and "✗" for false.
func BoolMark(v bool) string {
	if v {
		return "✓"
	}
	return "✗"
}

// Bar renders a text bar of value/peak scaled to width, used by histograms.
func Bar(value, peak, width int) string {
	if peak <= 0 || width <= 0 || value <= 0 {
		return ""
	}
	n := value * width / peak
	if n == 0 {
		n = 1
	}
	b := make([]rune, n)
	for i := range b {
		b[i] = '█'
	}
	return string(b)
}
