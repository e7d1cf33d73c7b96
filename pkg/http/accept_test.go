package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func negotiate(t *testing.T, accept string, pref []string) string {
	req, err := http.NewRequest("GET", "http://example.com/", nil)
	assert.NoError(t, err)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return negotiateContentType(req, pref)
}

func TestNegotiateNoHeader(t *testing.T) {
	assert.Equal(t, "application/json", negotiate(t, "", []string{"application/json", "text/plain"}))
}

func TestNegotiateQuality(t *testing.T) {
	assert.Equal(t, "text/plain", negotiate(t, "application/json;q=0.5, text/plain", []string{"application/json", "text/plain"}))
}

func TestNegotiatePreferenceBreaksTie(t *testing.T) {
	assert.Equal(t, "application/json", negotiate(t, "text/plain, application/json", []string{"application/json", "text/plain"}))
}

func TestNegotiateNothingAcceptable(t *testing.T) {
	assert.Equal(t, "", negotiate(t, "image/png", []string{"application/json", "text/plain"}))
}
