package resolver

import (
	"strings"
	"unicode"

	"auth-client/internal/auth"
	"auth-client/internal/utils"
)

const maxUsernameLength = 150

// usernameFromClaims picks the most human-friendly identifier the provider
// sent: preferred_username, cognito:username, the email local part, then sub.
func usernameFromClaims(claims auth.Claims) string {
	candidates := []string{
		claims.String("preferred_username"),
		claims.String("cognito:username"),
	}
	if local, _, ok := strings.Cut(claims.Email(), "@"); ok {
		candidates = append(candidates, local)
	}
	candidates = append(candidates, claims.Subject())

	for _, c := range candidates {
		if u := cleanUsername(c); u != "" {
			return u
		}
	}
	return ""
}

// cleanUsername keeps letters, digits and @.+-_ and caps the length.
func cleanUsername(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("@.+-_", r) {
			out = append(out, r)
		}
	}
	if len(out) > maxUsernameLength {
		out = out[:maxUsernameLength]
	}
	return string(out)
}

func withSuffix(username string) string {
	suffix := "_" + utils.RandomSuffix(6)
	r := []rune(username)
	if len(r)+len(suffix) > maxUsernameLength {
		r = r[:maxUsernameLength-len(suffix)]
	}
	return string(r) + suffix
}
