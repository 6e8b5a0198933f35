package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// FilterAction is what happens to a sensitive value.
type FilterAction string

const (
	FilterActionRemove FilterAction = "remove"
	FilterActionHash   FilterAction = "hash"
	FilterActionMask   FilterAction = "mask"
)

// MetadataFilter redacts sensitive values from record metadata and object
// changes. Keys are matched case-insensitively; a rule key may be an exact
// name, a prefix ("card_*"), a suffix ("*_token") or a substring ("*secret*").
type MetadataFilter struct {
	rules   map[string]FilterAction
	allowed map[string]struct{}
	pii     bool
}

var piiRules = map[string]FilterAction{
	"password":           FilterActionRemove,
	"password_digest":    FilterActionRemove,
	"encrypted_password": FilterActionRemove,
	"secret":             FilterActionRemove,
	"token":              FilterActionRemove,
	"api_key":            FilterActionRemove,
	"access_token":       FilterActionRemove,
	"refresh_token":      FilterActionRemove,
	"private_key":        FilterActionRemove,
	"cvv":                FilterActionRemove,
	"cvc":                FilterActionRemove,
	"ssn":                FilterActionMask,
	"card_number":        FilterActionMask,
	"credit_card":        FilterActionMask,
	"phone":              FilterActionMask,
	"phone_number":       FilterActionMask,
	"email":              FilterActionHash,
	"date_of_birth":      FilterActionHash,
	"dob":                FilterActionHash,
}

// FilterOption configures a MetadataFilter.
type FilterOption func(*MetadataFilter)

// NewMetadataFilter creates a filter with the built-in PII rules enabled.
func NewMetadataFilter(opts ...FilterOption) *MetadataFilter {
	f := &MetadataFilter{
		rules:   make(map[string]FilterAction),
		allowed: make(map[string]struct{}),
		pii:     true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithFilterRule adds or overrides the action for a key or key pattern.
func WithFilterRule(key string, action FilterAction) FilterOption {
	return func(f *MetadataFilter) {
		f.rules[strings.ToLower(key)] = action
	}
}

// WithAllowedKey lets a key through untouched, even if a rule matches it.
func WithAllowedKey(key string) FilterOption {
	return func(f *MetadataFilter) {
		f.allowed[strings.ToLower(key)] = struct{}{}
	}
}

// WithoutPIIDefaults disables the built-in PII rules.
func WithoutPIIDefaults() FilterOption {
	return func(f *MetadataFilter) {
		f.pii = false
	}
}

// Filter returns a redacted copy of metadata.
func (f *MetadataFilter) Filter(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		action, ok := f.actionFor(key)
		if !ok {
			out[key] = value
			continue
		}
		if action == FilterActionRemove {
			continue
		}
		out[key] = redact(action, value)
	}
	return out
}

// FilterChanges returns a redacted copy of changes. Both sides of a matched
// field are redacted; removed fields are dropped from the diff.
func (f *MetadataFilter) FilterChanges(changes Changes) Changes {
	if changes == nil {
		return nil
	}
	out := make(Changes, len(changes))
	for field, c := range changes {
		action, ok := f.actionFor(field)
		if !ok {
			out[field] = c
			continue
		}
		if action == FilterActionRemove {
			continue
		}
		out[field] = Change{Before: redactNil(action, c.Before), After: redactNil(action, c.After)}
	}
	return out
}

// actionFor finds the rule for key. Custom rules take precedence over PII
// defaults, exact names over patterns.
func (f *MetadataFilter) actionFor(key string) (FilterAction, bool) {
	key = strings.ToLower(key)
	if _, ok := f.allowed[key]; ok {
		return "", false
	}
	if action, ok := lookupRule(f.rules, key); ok {
		return action, true
	}
	if f.pii {
		return lookupRule(piiRules, key)
	}
	return "", false
}

func lookupRule(rules map[string]FilterAction, key string) (FilterAction, bool) {
	if action, ok := rules[key]; ok {
		return action, true
	}
	for pattern, action := range rules {
		if strings.Contains(pattern, "*") && matchKey(pattern, key) {
			return action, true
		}
	}
	return "", false
}

func matchKey(pattern, key string) bool {
	prefix := strings.HasPrefix(pattern, "*")
	suffix := strings.HasSuffix(pattern, "*")
	core := strings.Trim(pattern, "*")
	switch {
	case core == "":
		return true
	case prefix && suffix:
		return strings.Contains(key, core)
	case prefix:
		return strings.HasSuffix(key, core)
	case suffix:
		return strings.HasPrefix(key, core)
	}
	return false
}

func redactNil(action FilterAction, value any) any {
	if value == nil {
		return nil
	}
	return redact(action, value)
}

func redact(action FilterAction, value any) any {
	switch action {
	case FilterActionHash:
		sum := sha256.Sum256(fmt.Append(nil, value))
		return hex.EncodeToString(sum[:])
	case FilterActionMask:
		return mask(fmt.Sprint(value))
	default:
		return value
	}
}

// mask keeps a short head and tail of s visible.
func mask(s string) string {
	n := len(s)
	switch {
	case n <= 4:
		return strings.Repeat("*", n)
	case n <= 8:
		return s[:1] + strings.Repeat("*", n-2) + s[n-1:]
	default:
		return s[:2] + strings.Repeat("*", n-4) + s[n-2:]
	}
}
