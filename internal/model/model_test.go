package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageUnmarshalAcceptsBothShapes(t *testing.T) {
	raw := `{"id":"l1","theme":"/images/paper2.jpeg","font":"Caveat","content":["<p>eski</p>",{"html":"<p>yeni</p>","font":"Roboto","theme":"/t.png","color":"#ff0000"}]}`

	var l Letter
	require.NoError(t, json.Unmarshal([]byte(raw), &l))
	require.Len(t, l.Content, 2)

	assert.True(t, l.Content[0].IsLegacy())
	assert.False(t, l.Content[1].IsLegacy())
	assert.Equal(t, "Roboto", l.Content[1].Font)

	l.Normalize()
	assert.True(t, l.Legacy)
	assert.Equal(t, Page{HTML: "<p>eski</p>", Font: "Caveat", Theme: "/images/paper2.jpeg", Color: DefaultColor, legacy: true}, l.Content[0])
	assert.Equal(t, "#ff0000", l.Content[1].Color)
}

func TestNormalizeFallsBackToDefaultFont(t *testing.T) {
	l := Letter{Content: []Page{NewLegacyPage("x")}}
	l.Normalize()
	assert.Equal(t, DefaultFont, l.Content[0].Font)
}

func TestNormalizeFillsStructuredPages(t *testing.T) {
	raw := `{"id":"l1","theme":"/images/paper2.jpeg","font":"serif","content":[{"html":"<p>a</p>"},{"html":"<p>b</p>","theme":"/t.png","color":"#00ff00"}]}`

	var l Letter
	require.NoError(t, json.Unmarshal([]byte(raw), &l))
	l.Normalize()

	assert.False(t, l.Legacy)
	assert.Equal(t, Page{HTML: "<p>a</p>", Font: "serif", Theme: "/images/paper2.jpeg", Color: DefaultColor}, l.Content[0])
	assert.Equal(t, Page{HTML: "<p>b</p>", Font: "serif", Theme: "/t.png", Color: "#00ff00"}, l.Content[1])
}

func TestLetterVisibility(t *testing.T) {
	l := Letter{Owner: "a", From: "a", To: "b"}
	tests := []struct {
		uid  string
		want bool
	}{
		{"a", true},
		{"b", true},
		{"c", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, l.VisibleTo(tt.uid), tt.uid)
	}
	assert.False(t, l.IsDraft())
	assert.True(t, (&Letter{Owner: "a"}).IsDraft())
}

func TestIsDemoUser(t *testing.T) {
	assert.True(t, IsDemoUser("demo-user-123"))
	assert.False(t, IsDemoUser("google-123"))
}
