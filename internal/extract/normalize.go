package extract

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/pdiddy/filing-engine/pkg/types"
)

// NormalizeKeys returns a copy of rec with every key, at every depth,
// folded to snake_case. When two keys fold to the same name the later
// one gets a numeric suffix (_2, _3, ...).
func NormalizeKeys(rec *types.Record) *types.Record {
	out := types.NewRecord()
	for _, k := range rec.Keys() {
		v, _ := rec.Get(k)
		key := snakeCase(k)
		if _, taken := out.Get(key); taken {
			for i := 2; ; i++ {
				alt := fmt.Sprintf("%s_%d", key, i)
				if _, taken := out.Get(alt); !taken {
					key = alt
					break
				}
			}
		}
		out.Set(key, normalizeValue(v))
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case *types.Record:
		return NormalizeKeys(t)
	case []any:
		list := make([]any, len(t))
		for i, item := range t {
			list[i] = normalizeValue(item)
		}
		return list
	}
	return v
}

// snakeCase lowercases s, splits camelCase words, and joins runs of
// letters and digits with single underscores: "Name of the Company" and
// "NameOfTheCompany" both become "name_of_the_company".
func snakeCase(s string) string {
	var b strings.Builder
	sep := true
	prevLower := false
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			if prevLower && !sep {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			sep, prevLower = false, false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			sep, prevLower = false, true
		default:
			if !sep {
				b.WriteByte('_')
				sep = true
			}
			prevLower = false
		}
	}
	key := strings.TrimRight(b.String(), "_")
	if key == "" {
		return "field"
	}
	return key
}
