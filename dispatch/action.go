package dispatch

import (
	"strings"
	"unicode"
)

// humanize turns an action name such as "ideaVoteUpdate" or "idea-vote_update"
// into "idea vote update" for user facing messages.
func humanize(action string) string {
	if action == "" {
		return "request"
	}

	runes := []rune(action)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	lastSpace := false

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case unicode.IsUpper(r):
			if b.Len() > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if (unicode.IsLower(prev) || unicode.IsDigit(prev) || nextLower) && !lastSpace {
					b.WriteByte(' ')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			lastSpace = false

		case unicode.IsLower(r), unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false

		default:
			if !lastSpace && b.Len() > 0 {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}

	return strings.TrimSpace(b.String())
}
