// Package routing describes the bus rules of the order flow and evaluates their event patterns.
package routing

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Pattern is an event pattern. Keys are event fields; values are either a nested Pattern
// or a list of alternatives, each an exact value, Prefix(...) or Exists(...).
type Pattern map[string]interface{}

// Prefix matches string values starting with p.
func Prefix(p string) map[string]interface{} {
	return map[string]interface{}{"prefix": p}
}

// Exists matches on the presence (true) or absence (false) of a field.
func Exists(present bool) map[string]interface{} {
	return map[string]interface{}{"exists": present}
}

// JSON renders the pattern in the bus rule syntax.
func (p Pattern) JSON() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal pattern: %w", err)
	}
	return string(b), nil
}

// ParsePattern reads a pattern written in the bus rule syntax.
func ParsePattern(s string) (Pattern, error) {
	var p Pattern
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("parse pattern: %w", err)
	}
	return p, nil
}

// Matches decodes a JSON event and evaluates the pattern against it.
func (p Pattern) Matches(event []byte) (bool, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(event, &doc); err != nil {
		return false, fmt.Errorf("decode event: %w", err)
	}
	return p.MatchesDocument(doc), nil
}

// MatchesDocument evaluates the pattern against a decoded event. Every field must match;
// any alternative of a field may.
func (p Pattern) MatchesDocument(doc map[string]interface{}) bool {
	for field, want := range p {
		got, present := doc[field]
		if present && got == nil {
			present = false
		}
		if !matchField(want, got, present) {
			return false
		}
	}
	return true
}

func matchField(want, got interface{}, present bool) bool {
	switch w := want.(type) {
	case Pattern:
		return matchNested(map[string]interface{}(w), got, present)
	case map[string]interface{}:
		return matchNested(w, got, present)
	case []interface{}:
		return matchAny(w, got, present)
	case []string:
		alts := make([]interface{}, len(w))
		for i, s := range w {
			alts[i] = s
		}
		return matchAny(alts, got, present)
	case []map[string]interface{}:
		alts := make([]interface{}, len(w))
		for i, m := range w {
			alts[i] = m
		}
		return matchAny(alts, got, present)
	}
	return false
}

func matchNested(want map[string]interface{}, got interface{}, present bool) bool {
	if !present {
		// a nested pattern can still be satisfied by exists:false leaves
		return Pattern(want).MatchesDocument(map[string]interface{}{})
	}
	obj, ok := got.(map[string]interface{})
	if !ok {
		return false
	}
	return Pattern(want).MatchesDocument(obj)
}

func matchAny(alts []interface{}, got interface{}, present bool) bool {
	values := []interface{}{got}
	if arr, ok := got.([]interface{}); ok {
		values = arr
	}
	for _, alt := range alts {
		if m, ok := alt.(map[string]interface{}); ok {
			if ex, ok := m["exists"]; ok {
				if want, ok := ex.(bool); ok && want == present {
					return true
				}
				continue
			}
		}
		if !present {
			continue
		}
		for _, v := range values {
			if matchLeaf(alt, v) {
				return true
			}
		}
	}
	return false
}

func matchLeaf(alt, v interface{}) bool {
	switch a := alt.(type) {
	case map[string]interface{}:
		if pfx, ok := a["prefix"].(string); ok {
			s, isStr := v.(string)
			return isStr && strings.HasPrefix(s, pfx)
		}
		return false
	case string:
		s, ok := v.(string)
		return ok && s == a
	case bool:
		b, ok := v.(bool)
		return ok && b == a
	case float64:
		n, ok := v.(float64)
		return ok && n == a
	case int:
		n, ok := v.(float64)
		return ok && n == float64(a)
	case nil:
		return v == nil
	}
	return false
}
