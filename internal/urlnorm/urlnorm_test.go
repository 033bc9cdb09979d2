package urlnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"example.com", "example.com"},
		{"Example.COM.", "example.com"},
		{"www.example.com", "example.com"},
		{"https://WWW.Example.com:8443/path?q=1", "example.com"},
		{"example.com:8080/page", "example.com"},
		{"http://sub.example.co.uk/", "sub.example.co.uk"},
		{"bücher.de", "xn--bcher-kva.de"},
		{"http://192.0.2.1/x", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Domain(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDomain_Empty(t *testing.T) {
	_, err := Domain("   ")
	assert.Error(t, err)
}

func TestRegistrable(t *testing.T) {
	assert.Equal(t, "example.co.uk", Registrable("blog.example.co.uk"))
	assert.Equal(t, "example.com", Registrable("a.b.example.com"))
	assert.Equal(t, "example.com", Registrable("example.com"))
	assert.Equal(t, "localhost", Registrable("localhost"))
	assert.Equal(t, "192.0.2.1", Registrable("192.0.2.1"))
}

func TestURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"example.com", "https://example.com/"},
		{"HTTPS://Example.com:443/a/b#frag", "https://example.com/a/b"},
		{"http://example.com:80", "http://example.com/"},
		{"http://example.com:8080/x?y=1", "http://example.com:8080/x?y=1"},
		{"https://user:pw@www.example.com/p", "https://example.com/p"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := URL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestURL_RejectsOtherSchemes(t *testing.T) {
	_, err := URL("ftp://example.com/file")
	assert.Error(t, err)
}

func TestHash_StableAcrossEquivalentForms(t *testing.T) {
	a, err := Hash("https://Example.com/page#top")
	require.NoError(t, err)
	b, err := Hash("example.com/page")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := Hash("example.com/other")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
