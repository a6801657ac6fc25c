package dataurl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		mediaType string
		data      string
	}{
		{"base64 png", "data:image/png;base64,aGVsbG8=", "image/png", "hello"},
		{"unpadded", "data:image/png;base64,aGVsbG8", "image/png", "hello"},
		{"with whitespace", "data:image/jpeg;base64,aGVs\nbG8=", "image/jpeg", "hello"},
		{"percent encoded", "data:,Hello%2C%20World", "text/plain", "Hello, World"},
		{"upper-case prefix", "DATA:image/PNG;base64,aGk=", "image/png", "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.mediaType, d.MediaType)
			assert.Equal(t, tt.data, string(d.Data))
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"", "/images/paper3.jpeg", "data:image/png;base64", "data:image/png;base64,!!!"} {
		_, err := Parse(in)
		assert.True(t, errors.Is(err, ErrInvalid), "Parse(%q) = %v", in, err)
	}
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("data:image/png;base64,AAAA"))
	assert.False(t, IsImage("data:text/plain,hi"))
	assert.False(t, IsImage("https://example.com/a.png"))
}

func TestEncodeRoundTrip(t *testing.T) {
	s := Encode("image/png", []byte{0x89, 'P', 'N', 'G'})
	d, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, d.Data)
}

func TestDigest(t *testing.T) {
	a := Encode("image/png", []byte("x"))
	assert.Equal(t, Digest(a), Digest(a))
	assert.NotEqual(t, Digest(a), Digest(Encode("image/png", []byte("y"))))
	assert.Len(t, Digest(a), 64)
}
