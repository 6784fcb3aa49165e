package tenant

import (
	"fmt"
	"strings"
	"unicode"
)

// Slugify lowercases name and collapses every run of non-alphanumeric
// characters into a single hyphen. The result may be empty for names with no
// usable characters; callers must reject that as an invalid name.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true

	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}

	return strings.TrimSuffix(b.String(), "-")
}

// Disambiguate returns base unchanged when it is free, otherwise the first
// base-N (N starting at 2) not present in taken. Pure over the resolved
// collision set; the lookup that builds taken runs before the write
// transaction and is fail-open under a simultaneous identical request.
func Disambiguate(base string, taken map[string]bool) string {
	if !taken[base] {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if !taken[candidate] {
			return candidate
		}
	}
}

// BranchUsername composes the branch's login-identifier root from the
// organization slug and the branch slug.
func BranchUsername(orgSlug, branchSlug string) string {
	return orgSlug + "-" + branchSlug
}
