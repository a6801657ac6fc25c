package editor

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestReconcile(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		rendered string
		want     string
		changed  bool
	}{
		{"same content", "<p>a</p>", "<p>a</p>", "<p>a</p>", false},
		{"external edit", "<p>b</p>", "<p>a</p>", "<p>b</p>", true},
		{"cleared", "", "<p>a</p>", "", true},
		{"both empty", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := Reconcile(tt.incoming, tt.rendered)
			if got != tt.want || changed != tt.changed {
				t.Errorf("Reconcile(%q, %q) = %q, %v; want %q, %v", tt.incoming, tt.rendered, got, changed, tt.want, tt.changed)
			}
		})
	}
}

func TestCharCeiling(t *testing.T) {
	c := CharCeiling{Limit: 5}
	if c.Overflows("<p>hello</p>") {
		t.Error("5 characters should fit")
	}
	if !c.Overflows("<p>hello!</p>") {
		t.Error("6 characters should overflow")
	}
}

func TestPageEditor_InputEmitsChange(t *testing.T) {
	var got []string
	p := NewPageEditor("", OnChange(func(html string) { got = append(got, html) }))

	if !p.Input("<p>Merhaba</p>") {
		t.Fatal("input rejected")
	}
	if !p.Insert("<p>dünya</p>") {
		t.Fatal("insert rejected")
	}
	if p.Content() != "<p>Merhaba</p><p>dünya</p>" {
		t.Errorf("unexpected content %q", p.Content())
	}
	if len(got) != 2 || got[1] != p.Content() {
		t.Errorf("unexpected change events %v", got)
	}
}

func TestPageEditor_FullAtCeilingAndRecovers(t *testing.T) {
	fullEvents := 0
	p := NewPageEditor("",
		WithCapacity(CharCeiling{Limit: DefaultCharLimit}),
		OnFull(func() { fullEvents++ }),
	)

	text := strings.Repeat("a", DefaultCharLimit)
	if !p.Input(text) {
		t.Fatal("page at the limit should be accepted")
	}
	if p.Insert("b") {
		t.Fatal("insertion past the limit should be suppressed")
	}
	if p.State() != Full {
		t.Fatalf("expected full, got %s", p.State())
	}
	if fullEvents != 1 {
		t.Errorf("expected one full event, got %d", fullEvents)
	}
	if p.Content() != text {
		t.Error("suppressed insertion changed the content")
	}

	// trimming brings the page back under the limit
	p.SetContent(text[:10])
	if p.State() != Full {
		t.Error("SetContent should not change the state")
	}
	if !p.Insert("b") {
		t.Fatal("insertion should succeed after trimming")
	}
	if p.State() != Editable {
		t.Errorf("expected editable, got %s", p.State())
	}
}

func TestPageEditor_ReadOnly(t *testing.T) {
	events := 0
	p := NewPageEditor("<p>sent</p>",
		AsReadOnly(),
		OnChange(func(string) { events++ }),
		OnFull(func() { events++ }),
	)

	if p.Insert("x") || p.Input("<p>other</p>") {
		t.Fatal("read-only editor accepted a mutation")
	}
	if p.State() != ReadOnly {
		t.Errorf("expected readOnly, got %s", p.State())
	}
	if p.Content() != "<p>sent</p>" {
		t.Errorf("content changed: %q", p.Content())
	}
	if events != 0 {
		t.Errorf("read-only editor emitted %d events", events)
	}
}

func TestPageEditor_SetContentOnlyOnDivergence(t *testing.T) {
	events := 0
	p := NewPageEditor("<p>a</p>", OnChange(func(string) { events++ }))

	if p.SetContent("<p>a</p>") {
		t.Error("identical content reported as changed")
	}
	if !p.SetContent("<p>b</p>") {
		t.Error("diverging content not applied")
	}
	if p.Content() != "<p>b</p>" {
		t.Errorf("unexpected content %q", p.Content())
	}
	if events != 0 {
		t.Error("SetContent must not emit change events")
	}
}

func TestPageEditor_NilCapacity(t *testing.T) {
	p := NewPageEditor("", WithCapacity(nil))
	if !p.Input(strings.Repeat("x", 5000)) {
		t.Fatal("nil capacity should never overflow")
	}
}

func TestPageEditor_ConcurrentInsertKeepsEveryFragment(t *testing.T) {
	p := NewPageEditor("", WithCapacity(nil))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if !p.Insert(fmt.Sprintf("<b>%d</b>", i)) {
				t.Errorf("Insert %d rejected", i)
			}
		}(i)
	}
	wg.Wait()

	got := p.Content()
	for i := 0; i < n; i++ {
		if !strings.Contains(got, fmt.Sprintf("<b>%d</b>", i)) {
			t.Errorf("fragment %d lost: %s", i, got)
		}
	}
}
