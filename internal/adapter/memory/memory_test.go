package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jun/dijitalmektup/internal/adapter"
	"github.com/jun/dijitalmektup/internal/model"
)

func newLetter(id, owner string, ts int64) *model.Letter {
	return &model.Letter{
		ID:        id,
		Owner:     owner,
		From:      owner,
		Theme:     "/images/paper3.jpeg",
		Content:   []model.Page{{HTML: "<p>hi</p>", Font: "inherit", Theme: "/images/paper3.jpeg", Color: "#222222"}},
		Timestamp: ts,
	}
}

func TestLetterStore_CreateAndGet(t *testing.T) {
	s := NewLetterStore(nil, "")
	ctx := context.Background()

	if err := s.CreateLetter(ctx, newLetter("l1", "user1", 10)); err != nil {
		t.Fatalf("CreateLetter failed: %v", err)
	}

	got, err := s.GetLetter(ctx, "l1")
	if err != nil {
		t.Fatalf("GetLetter failed: %v", err)
	}
	if got.ID != "l1" || got.Owner != "user1" {
		t.Errorf("unexpected letter: %+v", got)
	}
	if len(got.Content) != 1 || got.Content[0].HTML != "<p>hi</p>" {
		t.Errorf("content mismatch: %+v", got.Content)
	}
}

func TestLetterStore_CreateDuplicate(t *testing.T) {
	s := NewLetterStore(nil, "")
	ctx := context.Background()

	if err := s.CreateLetter(ctx, newLetter("l1", "user1", 10)); err != nil {
		t.Fatalf("CreateLetter failed: %v", err)
	}
	err := s.CreateLetter(ctx, newLetter("l1", "user1", 20))
	if !errors.Is(err, adapter.ErrAlreadyExists) {
		t.Fatalf("Expected ErrAlreadyExists, got %v", err)
	}

	got, _ := s.GetLetter(ctx, "l1")
	if got.Timestamp != 10 {
		t.Errorf("duplicate create overwrote the record: timestamp %d", got.Timestamp)
	}
}

func TestLetterStore_GetNotFound(t *testing.T) {
	s := NewLetterStore(nil, "")
	_, err := s.GetLetter(context.Background(), "nope")
	if !errors.Is(err, adapter.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLetterStore_ListOrderAndFilter(t *testing.T) {
	s := NewLetterStore(nil, "")
	ctx := context.Background()

	for i, ts := range []int64{30, 10, 20} {
		if err := s.CreateLetter(ctx, newLetter(fmt.Sprintf("a%d", i), "alice", ts)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.CreateLetter(ctx, newLetter("b0", "bob", 99)); err != nil {
		t.Fatal(err)
	}

	letters, err := s.ListLetters(ctx, adapter.LetterQuery{Owner: "alice"})
	if err != nil {
		t.Fatalf("ListLetters failed: %v", err)
	}
	if len(letters) != 3 {
		t.Fatalf("Expected 3 letters, got %d", len(letters))
	}
	for i, want := range []int64{30, 20, 10} {
		if letters[i].Timestamp != want {
			t.Errorf("letters[%d].Timestamp = %d, want %d", i, letters[i].Timestamp, want)
		}
	}

	limited, _ := s.ListLetters(ctx, adapter.LetterQuery{Owner: "alice", Limit: 1})
	if len(limited) != 1 || limited[0].Timestamp != 30 {
		t.Errorf("limit not applied: %+v", limited)
	}

	none, err := s.ListLetters(ctx, adapter.LetterQuery{Owner: "carol"})
	if err != nil {
		t.Fatal(err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("Expected empty non-nil slice, got %#v", none)
	}
}

func TestLetterStore_LegacyRecordIsNormalized(t *testing.T) {
	s := NewLetterStore(nil, "")
	s.PutRaw(LetterItem{
		PK:        "legacy",
		Owner:     "user1",
		Timestamp: 5,
		Body:      `{"content":["<p>old</p>",{"html":"<p>new</p>","font":"serif","theme":"t","color":"#000000"}],"theme":"/images/paper2.jpeg","font":"cursive","owner":"user1","timestamp":5}`,
	})

	got, err := s.GetLetter(context.Background(), "legacy")
	if err != nil {
		t.Fatalf("GetLetter failed: %v", err)
	}
	if !got.Legacy {
		t.Error("Expected letter to be flagged legacy")
	}
	first := got.Content[0]
	if first.HTML != "<p>old</p>" || first.Font != "cursive" || first.Theme != "/images/paper2.jpeg" || first.Color != model.DefaultColor {
		t.Errorf("legacy page not migrated: %+v", first)
	}
	if got.Content[1].Font != "serif" {
		t.Errorf("structured page altered: %+v", got.Content[1])
	}
}

func TestLetterStore_Delete(t *testing.T) {
	s := NewLetterStore(nil, "")
	ctx := context.Background()
	_ = s.CreateLetter(ctx, newLetter("l1", "user1", 1))

	if err := s.DeleteLetter(ctx, "l1"); err != nil {
		t.Fatalf("DeleteLetter failed: %v", err)
	}
	if err := s.DeleteLetter(ctx, "l1"); !errors.Is(err, adapter.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestLetterStore_DemoLimit(t *testing.T) {
	s := NewLetterStore(nil, "")
	ctx := context.Background()
	owner := model.DemoUserPrefix + "abc"

	for i := 0; i < maxDemoLetterCount; i++ {
		if err := s.CreateLetter(ctx, newLetter(fmt.Sprintf("d%d", i), owner, int64(i))); err != nil {
			t.Fatalf("CreateLetter %d failed: %v", i, err)
		}
	}
	err := s.CreateLetter(ctx, newLetter("overflow", owner, 999))
	if !errors.Is(err, adapter.ErrLimitExceeded) {
		t.Fatalf("Expected ErrLimitExceeded, got %v", err)
	}

	// Regular users are not limited.
	for i := 0; i <= maxDemoLetterCount; i++ {
		if err := s.CreateLetter(ctx, newLetter(fmt.Sprintf("r%d", i), "regular", int64(i))); err != nil {
			t.Fatalf("regular CreateLetter %d failed: %v", i, err)
		}
	}
}

func TestObjects_PutGetDelete(t *testing.T) {
	o := NewObjects("http://localhost:8080/")
	ctx := context.Background()

	url, err := o.PutObject(ctx, "themes/x_global_theme.png", []byte("png"), "image/png")
	if err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}
	if url != "http://localhost:8080/objects/themes/x_global_theme.png" {
		t.Errorf("unexpected url %q", url)
	}

	data, ct, err := o.GetObject("themes/x_global_theme.png")
	if err != nil || string(data) != "png" || ct != "image/png" {
		t.Errorf("GetObject = %q %q %v", data, ct, err)
	}

	if err := o.DeleteObject(ctx, "themes/x_global_theme.png"); err != nil {
		t.Fatalf("DeleteObject failed: %v", err)
	}
	if err := o.DeleteObject(ctx, "themes/x_global_theme.png"); !errors.Is(err, adapter.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestObjects_SizeLimit(t *testing.T) {
	o := NewObjects("")
	_, err := o.PutObject(context.Background(), "big", make([]byte, maxDemoObjectSize+1), "image/png")
	if !errors.Is(err, adapter.ErrLimitExceeded) {
		t.Errorf("Expected ErrLimitExceeded, got %v", err)
	}
}

func TestKV_Expiry(t *testing.T) {
	kv := NewKV()
	now := time.Unix(1000, 0)
	kv.now = func() time.Time { return now }
	ctx := context.Background()

	if err := kv.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if v, err := kv.Get(ctx, "k"); err != nil || string(v) != "v" {
		t.Fatalf("Get = %q, %v", v, err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := kv.Get(ctx, "k"); !errors.Is(err, adapter.ErrNotFound) {
		t.Errorf("Expected expired key to be ErrNotFound, got %v", err)
	}

	_ = kv.Set(ctx, "forever", []byte("x"), 0)
	_ = kv.Delete(ctx, "forever")
	if _, err := kv.Get(ctx, "forever"); !errors.Is(err, adapter.ErrNotFound) {
		t.Errorf("Expected deleted key to be ErrNotFound, got %v", err)
	}
}

func TestPubSub_DeliversUntilCancelled(t *testing.T) {
	ps := NewPubSub()
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan string, 4)
	if err := ps.Subscribe(ctx, "user:1", func(m []byte) { got <- string(m) }); err != nil {
		t.Fatal(err)
	}

	_ = ps.Publish(context.Background(), "user:1", []byte("hello"))
	_ = ps.Publish(context.Background(), "user:2", []byte("other"))

	select {
	case m := <-got:
		if m != "hello" {
			t.Errorf("got %q", m)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for {
		ps.mu.RLock()
		n := len(ps.subs["user:1"])
		ps.mu.RUnlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscriber not removed after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestQueue_SendReceiveDelete(t *testing.T) {
	q := NewQueue(4, 50*time.Millisecond)
	ctx := context.Background()

	msg, err := q.Receive(ctx, 1)
	if err != nil || msg != nil {
		t.Fatalf("empty queue Receive = %v, %v", msg, err)
	}

	if err := q.Send(ctx, "task"); err != nil {
		t.Fatal(err)
	}
	msg, err = q.Receive(ctx, 30)
	if err != nil || msg == nil || msg.Body != "task" {
		t.Fatalf("Receive = %+v, %v", msg, err)
	}
	if err := q.Delete(ctx, msg); err != nil {
		t.Fatal(err)
	}
	if q.Len() != 0 {
		t.Errorf("Expected empty queue, got %d", q.Len())
	}
}
