package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGlobPattern(t *testing.T) {
	p := NewPattern("glob:release-*")
	assert.True(t, p.Matches("release-1"))
	assert.False(t, p.Matches("hotfix-1"))
	assert.Equal(t, "release-9", p.Select([]string{"release-1", "release-9", "hotfix-2"}))

	// No prefix means glob.
	assert.True(t, NewPattern("*").Matches("anything"))
}

func TestSemverPattern(t *testing.T) {
	p := NewPattern("semver:^1.0")
	assert.True(t, p.Valid())
	assert.True(t, p.Matches("1.2.3"))
	assert.False(t, p.Matches("2.0.0"))
	assert.False(t, p.Matches("not-a-version"))
	// Picks the highest version, not the lexically greatest tag.
	assert.Equal(t, "1.10.0", p.Select([]string{"1.2.3", "1.10.0", "1.9.9", "2.0.0"}))
}

func TestRegexpPattern(t *testing.T) {
	p := NewPattern("regexp:^v[0-9]+$")
	assert.True(t, p.Matches("v1"))
	assert.False(t, p.Matches("v1-rc1"))
	assert.Equal(t, p.String(), NewPattern("regex:^v[0-9]+$").String())
}

func TestIsPattern(t *testing.T) {
	assert.True(t, IsPattern("glob:release-*"))
	assert.True(t, IsPattern("semver:~1.0"))
	assert.False(t, IsPattern("master"))
	assert.False(t, IsPattern("bf2e91b384d2053f0c7e96bcd01e8be2fe10bafa"))
}
