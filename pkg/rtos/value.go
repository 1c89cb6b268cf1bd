package rtos

import (
	"fmt"
	"strconv"
	"strings"
)

// parseUint decodes a debugger-rendered scalar. Pointer values often come
// annotated ("0x20001234 <ucHeap+512>"), so only the first token counts.
func parseUint(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return 0, fmt.Errorf("empty scalar")
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("parse scalar %q: %w", s, err)
	}
	return v, nil
}

// parseInt is parseUint for values a debugger may render signed.
func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return 0, fmt.Errorf("empty scalar")
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("parse scalar %q: %w", s, err)
	}
	return v, nil
}

// parseName extracts the quoted task name from a rendered char buffer,
// e.g. `0x20001020 "IDLE"` or `"Tmr Svc"`. Without quotes the trimmed
// string is returned as-is.
func parseName(s string) string {
	start := strings.IndexByte(s, '"')
	if start < 0 {
		return strings.TrimSpace(s)
	}
	end := strings.LastIndexByte(s, '"')
	if end <= start {
		return strings.TrimSpace(s)
	}
	return s[start+1 : end]
}

// uintField reads the named field of an aggregate and parses it. The
// second return distinguishes a missing field from a failed read.
func uintField(fields map[string]Var, name string) (uint64, bool, error) {
	v, ok := fields[name]
	if !ok {
		return 0, false, nil
	}
	raw, err := v.Value()
	if err != nil {
		return 0, true, fmt.Errorf("%w: %s: %v", ErrReadUnavailable, name, err)
	}
	n, err := parseUint(raw)
	if err != nil {
		return 0, true, fmt.Errorf("field %s: %w", name, err)
	}
	return n, true, nil
}
