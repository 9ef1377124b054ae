// Package identity validates bot account names and manages the Linux user
// accounts that back them, either on the local host or over SSH.
package identity

import (
	"fmt"
	"regexp"
)

// nameRe: 2-32 chars, lowercase alphanumeric plus hyphen, must start with a
// letter and must not end with a hyphen.
var nameRe = regexp.MustCompile(`^[a-z][a-z0-9-]{0,30}[a-z0-9]$`)

// reservedNames are system and service accounts that must never be handed
// out as bot identities, regardless of syntax.
var reservedNames = []string{
	"root", "admin", "administrator", "daemon", "bin", "sys", "sync",
	"games", "man", "lp", "mail", "news", "uucp", "proxy", "www-data",
	"backup", "list", "irc", "nobody", "sshd", "systemd-network",
	"systemd-resolve", "messagebus", "postgres", "ubuntu",
}

// InvalidNameError reports why a proposed identity name was rejected.
type InvalidNameError struct {
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid identity name %q: %s", e.Name, e.Reason)
}

// Validator checks proposed identity names against the syntax rule and the
// reserved-name list. It is pure: no I/O, safe for concurrent use.
type Validator struct {
	reserved map[string]struct{}
}

// NewValidator builds a validator with the built-in reserved names plus any
// operator-configured additions.
func NewValidator(extraReserved []string) *Validator {
	reserved := make(map[string]struct{}, len(reservedNames)+len(extraReserved))
	for _, name := range reservedNames {
		reserved[name] = struct{}{}
	}
	for _, name := range extraReserved {
		reserved[name] = struct{}{}
	}
	return &Validator{reserved: reserved}
}

// Validate returns nil for an acceptable name and *InvalidNameError otherwise.
func (v *Validator) Validate(name string) error {
	if !nameRe.MatchString(name) {
		return &InvalidNameError{
			Name:   name,
			Reason: "must be 2-32 lowercase alphanumeric characters or hyphens, starting with a letter and not ending with a hyphen",
		}
	}
	if _, ok := v.reserved[name]; ok {
		return &InvalidNameError{Name: name, Reason: "name is reserved"}
	}
	return nil
}
