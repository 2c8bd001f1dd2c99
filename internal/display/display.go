// Package display provides human-readable names for machine codes.
//
// Rule: code is for machines, words are for humans.
// Use these functions in CLI output and rendered reports. Keep raw codes for
// JSON fields, map keys, and equality comparisons.
package display

import (
	"strings"

	"droidbench/internal/trace"
)

// --- Engines ---

var engines = map[string]string{
	"action_coverage": "Action coverage",
	"exact_match":     "Exact match",
	"page_coverage":   "Page coverage",
}

// Engine returns the human-readable name for an engine code.
// Unknown codes are returned as-is.
func Engine(code string) string {
	if name, ok := engines[code]; ok {
		return name
	}
	return code
}

// EngineWithCode returns "Action coverage (action_coverage)" format.
func EngineWithCode(code string) string {
	if name, ok := engines[code]; ok {
		return name + " (" + code + ")"
	}
	return code
}

// --- Action types ---

var actionTypes = map[string]string{
	"click":       "Tap",
	"tap":         "Tap",
	"long_click":  "Long press",
	"long_press":  "Long press",
	"input":       "Text input",
	"input_text":  "Text input",
	"set_text":    "Text input",
	"swipe":       "Swipe",
	"scroll":      "Scroll",
	"back":        "Back",
	"press_back":  "Back",
	"home":        "Home",
	"press_home":  "Home",
	"enter":       "Enter",
	"launch":      "Launch app",
	"start_app":   "Launch app",
	"stop_app":    "Stop app",
	"restart_app": "Restart app",
	"wait":        "Wait",
}

// ActionType returns a readable name for a recorded action type. Known
// aliases share a name; unknown types are title-cased with underscores
// turned into spaces.
func ActionType(code string) string {
	key := strings.ToLower(strings.TrimSpace(code))
	if name, ok := actionTypes[key]; ok {
		return name
	}
	if key == "" {
		return ""
	}
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	if len(words) == 0 {
		return code
	}
	words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	return strings.Join(words, " ")
}

// --- Pages ---

var pageLabels = map[string]string{
	"complex_page": "Unrecognised (complex)",
	"simple_page":  "Unrecognised (simple)",
	trace.NullPage: "(not observed)",
}

// Page returns a readable page label. Detector fallbacks and the null-page
// marker get descriptive names; real page names pass through unchanged.
func Page(label string) string {
	if name, ok := pageLabels[label]; ok {
		return name
	}
	return label
}

// Score renders an engine percentage, or "-" when the engine did not run
// (negative score).
func Score(p float64, format func(float64) string) string {
	if p < 0 {
		return "-"
	}
	return format(p)
}
