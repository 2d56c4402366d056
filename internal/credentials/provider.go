// Package credentials looks up login secrets for editorial platforms.
package credentials

import (
	"os"
	"strings"
)

// Standard field names requested by the session manager
const (
	FieldUsername     = "username"
	FieldPassword     = "password"
	FieldSecondFactor = "second_factor"
)

// Provider returns a secret for a service. The second return value is false when nothing is stored.
type Provider interface {
	Get(service, field string) (string, bool)
}

// EnvProvider reads secrets from environment variables named <PREFIX><SERVICE>_<FIELD>,
// e.g. REFMON_SICON_PASSWORD
type EnvProvider struct {
	Prefix string
	lookup func(string) (string, bool)
}

// Ensure EnvProvider implements Provider
var _ Provider = (*EnvProvider)(nil)

// NewEnvProvider creates a provider backed by the process environment
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix, lookup: os.LookupEnv}
}

// Get implements Provider
func (p *EnvProvider) Get(service, field string) (string, bool) {
	value, ok := p.lookup(p.key(service, field))
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

func (p *EnvProvider) key(service, field string) string {
	clean := func(s string) string {
		s = strings.ToUpper(strings.TrimSpace(s))
		return strings.Map(func(r rune) rune {
			if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
				return r
			}
			return '_'
		}, s)
	}
	return p.Prefix + clean(service) + "_" + clean(field)
}

// Static is an in-memory provider, handy for tests and one-off runs
type Static map[string]map[string]string

// Get implements Provider
func (s Static) Get(service, field string) (string, bool) {
	fields, ok := s[service]
	if !ok {
		return "", false
	}
	value, ok := fields[field]
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
