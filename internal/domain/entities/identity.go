package entities

import "strings"

// NormalizeIdentity case-normalizes a caller-supplied identity before any
// comparison or storage use. Identities are asserted by the caller and only
// become trustworthy once embedded in a verified credential.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// ValidIdentity reports whether a normalized identity is usable as a billing
// correlation handle. The check is deliberately loose: the billing provider
// is the authority on whether the address maps to an account.
func ValidIdentity(identity string) bool {
	if identity == "" || len(identity) > 254 {
		return false
	}
	at := strings.Index(identity, "@")
	if at <= 0 || at == len(identity)-1 {
		return false
	}
	return !strings.ContainsAny(identity, " \t\r\n")
}
