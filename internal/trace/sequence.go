package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// ErrNotArray is returned when a persisted trace is valid JSON but not a list.
var ErrNotArray = errors.New("trace file must contain a JSON array")

// Sequence is an ordered trace; index order is execution order.
type Sequence []Action

// Append adds an action with the given type, page ("" = unknown) and params.
func (s *Sequence) Append(typ, page string, params Params) {
	*s = append(*s, NewAction(typ, page, params))
}

// Types returns the action type of every step.
func (s Sequence) Types() []string {
	out := make([]string, len(s))
	for i, a := range s {
		out[i] = a.Type
	}
	return out
}

// Transitions returns the transition key of every step, with repeats.
func (s Sequence) Transitions() []TransitionKey {
	out := make([]TransitionKey, len(s))
	for i, a := range s {
		out[i] = a.Key()
	}
	return out
}

// TransitionSet returns the distinct transition keys of the sequence.
func (s Sequence) TransitionSet() map[TransitionKey]struct{} {
	set := make(map[TransitionKey]struct{}, len(s))
	for _, a := range s {
		set[a.Key()] = struct{}{}
	}
	return set
}

// FilterByType returns the steps whose type equals typ, in order.
func (s Sequence) FilterByType(typ string) Sequence {
	var out Sequence
	for _, a := range s {
		if a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

// UniquePages returns the sorted set of observed (non-empty) page names.
func (s Sequence) UniquePages() []string {
	seen := make(map[string]struct{})
	for _, a := range s {
		if a.NextPage != nil && *a.NextPage != "" {
			seen[*a.NextPage] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Strings renders every step canonically; see Action.String.
func (s Sequence) Strings() []string {
	out := make([]string, len(s))
	for i, a := range s {
		out[i] = a.String()
	}
	return out
}

// Parse decodes a persisted trace: a JSON array of {type, next_page, params}.
func Parse(data []byte) (Sequence, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		if !json.Valid(trimmed) {
			return nil, fmt.Errorf("parse trace: invalid JSON")
		}
		return nil, ErrNotArray
	}
	var seq Sequence
	if err := json.Unmarshal(trimmed, &seq); err != nil {
		return nil, fmt.Errorf("parse trace: %w", err)
	}
	return seq, nil
}

// LoadFile reads and parses a persisted trace.
func LoadFile(path string) (Sequence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	seq, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return seq, nil
}

// LoadOrEmpty loads a trace and degrades to an empty sequence on any error,
// logging the failure. Scoring then reports zero coverage instead of aborting.
func LoadOrEmpty(path string, log *slog.Logger) Sequence {
	seq, err := LoadFile(path)
	if err != nil {
		if log != nil {
			log.Error("load trace failed", "path", path, "error", err)
		}
		return Sequence{}
	}
	return seq
}

// SaveFile writes the trace as an indented JSON array, creating parent dirs.
func (s Sequence) SaveFile(path string) error {
	if s == nil {
		s = Sequence{}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create trace dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	return nil
}
