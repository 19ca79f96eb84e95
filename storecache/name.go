package storecache

import (
	"reflect"
	"strings"
	"unicode"
)

// defaultName derives a cache name from the item type, e.g. "user_profile"
// for UserProfile or *UserProfile.
func defaultName[T any]() string {
	typ := reflect.TypeFor[T]()
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if name := toSnake(typ.Name()); name != "" {
		return name
	}
	return "items"
}

// toSnake converts s to snake_case. Punctuation from reflected names, such
// as generic brackets or package qualifiers, collapses into a single
// underscore.
func toSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	underscore := func() {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "_") {
			b.WriteByte('_')
		}
	}

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					underscore()
				}
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLower(r):
			b.WriteRune(r)
		case unicode.IsDigit(r):
			if i > 0 && !unicode.IsDigit(runes[i-1]) {
				underscore()
			}
			b.WriteRune(r)
		default:
			underscore()
		}
	}

	return strings.Trim(b.String(), "_")
}
