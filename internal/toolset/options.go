package toolset

import "strings"

// Options is the per-request ToolVersionOptions map, plus an optional
// install-time environment overlay. Option keys are always non-empty;
// insertion order is irrelevant (a plain map suffices).
type Options struct {
	Values     map[string]string
	InstallEnv map[string]string
}

// NewOptions returns an empty Options value.
func NewOptions() Options {
	return Options{Values: map[string]string{}, InstallEnv: map[string]string{}}
}

// IsEmpty reports whether the options carry no values and no install-env
// overlay.
func (o Options) IsEmpty() bool {
	return len(o.Values) == 0 && len(o.InstallEnv) == 0
}

// ParseOptions parses the "k1=v1,k2=v2" option syntax (§6). Empty keys
// are skipped; a missing "=" means an empty value. Unknown keys are
// preserved verbatim and forwarded to backends.
func ParseOptions(raw string) Options {
	opts := NewOptions()
	if raw == "" {
		return opts
	}
	for part := range strings.SplitSeq(raw, ",") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		if key == "" {
			continue
		}
		opts.Values[key] = value
	}
	return opts
}

// FormatOptions renders Options back to "k1=v1,k2=v2" syntax. Keys are
// sorted for deterministic output; this is not required to match the
// original insertion order, only to round-trip through ParseOptions.
func FormatOptions(o Options) string {
	if len(o.Values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(o.Values))
	for k := range o.Values {
		keys = append(keys, k)
	}
	sortStrings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(o.Values[k])
	}
	return sb.String()
}

func sortStrings(s []string) {
	// insertion sort is fine: option maps are tiny in practice
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
