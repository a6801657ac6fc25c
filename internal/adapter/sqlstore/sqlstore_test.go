package sqlstore

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/jun/dijitalmektup/internal/adapter"
	"github.com/jun/dijitalmektup/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LetterStore {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func letter(id, owner, to string, ts int64) *model.Letter {
	return &model.Letter{
		ID:        id,
		Owner:     owner,
		From:      owner,
		To:        to,
		Theme:     "/images/paper3.jpeg",
		Content:   []model.Page{{HTML: "<p>x</p>", Font: "inherit", Theme: "/images/paper3.jpeg", Color: "#222222"}},
		Timestamp: ts,
	}
}

func TestCreateGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateLetter(ctx, letter("l1", "alice", "bob", 100)))

	got, err := s.GetLetter(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.To)
	assert.Equal(t, "<p>x</p>", got.Content[0].HTML)

	_, err = s.GetLetter(ctx, "missing")
	assert.ErrorIs(t, err, adapter.ErrNotFound)
}

func TestCreateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateLetter(ctx, letter("l1", "alice", "", 1)))
	err := s.CreateLetter(ctx, letter("l1", "alice", "", 2))
	assert.ErrorIs(t, err, adapter.ErrAlreadyExists)

	all, err := s.ListLetters(ctx, adapter.LetterQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, int64(1), all[0].Timestamp)
}

func TestListLetters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateLetter(ctx, letter("a", "alice", "bob", 10)))
	require.NoError(t, s.CreateLetter(ctx, letter("b", "alice", "", 30)))
	require.NoError(t, s.CreateLetter(ctx, letter("c", "alice", "carol", 20)))
	require.NoError(t, s.CreateLetter(ctx, letter("d", "bob", "alice", 40)))

	tests := []struct {
		name  string
		query adapter.LetterQuery
		want  []string
	}{
		{"owner desc", adapter.LetterQuery{Owner: "alice"}, []string{"b", "c", "a"}},
		{"drafts", adapter.LetterQuery{Owner: "alice", DraftsOnly: true}, []string{"b"}},
		{"inbox", adapter.LetterQuery{To: "alice"}, []string{"d"}},
		{"limit", adapter.LetterQuery{Owner: "alice", Limit: 2}, []string{"b", "c"}},
		{"none", adapter.LetterQuery{Owner: "zed"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListLetters(ctx, tt.query)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, l := range got {
				ids = append(ids, l.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestLegacyBody(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO letters (id, owner, timestamp, body) VALUES (?, ?, ?, ?)`),
		"old", "alice", 5, `{"content":["<p>legacy</p>"],"theme":"/images/paper1.jpeg","owner":"alice","timestamp":5}`)
	require.NoError(t, err)

	got, err := s.GetLetter(ctx, "old")
	require.NoError(t, err)
	assert.True(t, got.Legacy)
	assert.Equal(t, model.DefaultFont, got.Content[0].Font)
	assert.Equal(t, "/images/paper1.jpeg", got.Content[0].Theme)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateLetter(ctx, letter("l1", "alice", "", 1)))
	require.NoError(t, s.DeleteLetter(ctx, "l1"))
	assert.ErrorIs(t, s.DeleteLetter(ctx, "l1"), adapter.ErrNotFound)
}

func TestBindType(t *testing.T) {
	assert.Equal(t, sqlx.QUESTION, sqlx.BindType("sqlite"))
	assert.Equal(t, sqlx.DOLLAR, sqlx.BindType("postgres"))
}
