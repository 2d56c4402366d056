package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvProvider_Get(t *testing.T) {
	env := map[string]string{
		"REFMON_SICON_USERNAME":     "editor@example.org",
		"REFMON_SICON_PASSWORD":     "",
		"REFMON_MF_ONLINE_PASSWORD": "hunter2",
	}
	p := &EnvProvider{Prefix: "REFMON_", lookup: func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}}

	value, ok := p.Get("sicon", FieldUsername)
	assert.True(t, ok)
	assert.Equal(t, "editor@example.org", value)

	_, ok = p.Get("sicon", FieldPassword)
	assert.False(t, ok, "empty values count as missing")

	value, ok = p.Get("mf-online", FieldPassword)
	assert.True(t, ok)
	assert.Equal(t, "hunter2", value)

	_, ok = p.Get("unknown", FieldPassword)
	assert.False(t, ok)
}

func TestStatic_Get(t *testing.T) {
	s := Static{"sicon": {FieldUsername: "u", FieldPassword: "p"}}

	value, ok := s.Get("sicon", FieldPassword)
	assert.True(t, ok)
	assert.Equal(t, "p", value)

	_, ok = s.Get("sicon", FieldSecondFactor)
	assert.False(t, ok)

	_, ok = s.Get("other", FieldUsername)
	assert.False(t, ok)
}
