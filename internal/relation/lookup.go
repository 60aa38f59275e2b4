// Package relation produces the selectable options of relation fields: from
// the shared lookup catalog, from a known catalog endpoint, or by probing
// candidate endpoint paths one at a time.
package relation

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// namedPair matches the first quoted key/value pair whose key contains
	// "name", e.g. 'lookup_name': 'role_status'.
	namedPair = regexp.MustCompile(`['"]([^'"]*name[^'"]*)['"]\s*:\s*['"]([^'"]*)['"]`)
	// quoted matches any quoted literal.
	quoted = regexp.MustCompile(`['"]([^'"]*)['"]`)
)

// ExtractLookupName reads the lookup name out of a limit-choices-to
// expression. It tries the first quoted pair whose key contains "name", then
// the second quoted literal. ok is false when both fail; callers fall back to
// FormatFieldName in that case.
func ExtractLookupName(limitChoicesTo string) (name string, ok bool) {
	if m := namedPair.FindStringSubmatch(limitChoicesTo); m != nil && m[2] != "" {
		return m[2], true
	}
	literals := quoted.FindAllStringSubmatch(limitChoicesTo, -1)
	if len(literals) >= 2 && literals[1][1] != "" {
		return literals[1][1], true
	}
	return "", false
}

// FormatFieldName turns a field name into a readable label: a trailing
// "_id" is dropped, underscores become spaces and each word is capitalized.
// "account_status_id" becomes "Account Status".
func FormatFieldName(name string) string {
	name = strings.TrimSuffix(name, "_id")
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
