package moderation

import "regexp"

// unsafeMarkup matches script-injection signatures. The check runs on
// the raw text, not the normalized form: injection vectors use literal
// markup that normalization would destroy, so it must run first and
// separately from denylist matching.
var unsafeMarkup = regexp.MustCompile(`(?i)<script\b|</script>|onerror\s*=|onload\s*=|javascript:|data:text/html|<iframe\b`)

// ContainsUnsafeMarkup reports whether text carries a script-injection
// pattern. Any hit is terminal: the submission is rejected before any
// moderation scoring occurs.
func ContainsUnsafeMarkup(text string) bool {
	if text == "" {
		return false
	}
	return unsafeMarkup.MatchString(text)
}
