package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type RecorderSuite struct {
	suite.Suite
	open func(t *testing.T) Recorder
	rec  Recorder
}

func (s *RecorderSuite) SetupTest() {
	s.rec = s.open(s.T())
}

func (s *RecorderSuite) TearDownTest() {
	s.NoError(s.rec.Close())
}

func (s *RecorderSuite) TestRecordAndList() {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conv := "conv-" + s.T().Name()

	for i, answer := range []string{"first", "second", "third"} {
		s.Require().NoError(s.rec.Record(ctx, Transcript{
			ConversationID: conv,
			Input:          "q",
			Answer:         answer,
			Model:          "gpt-4o",
			Loops:          i + 1,
			Messages:       []byte(`[{"role":"user","content":"q"}]`),
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}))
	}
	s.Require().NoError(s.rec.Record(ctx, Transcript{ConversationID: "other", Input: "x", Answer: "y", CreatedAt: base}))

	got, err := s.rec.List(ctx, conv, 2)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("third", got[0].Answer)
	s.Equal("second", got[1].Answer)
	s.Equal(3, got[0].Loops)
	s.Equal("gpt-4o", got[0].Model)
	s.True(got[0].CreatedAt.Equal(base.Add(2*time.Minute)))
	s.JSONEq(`[{"role":"user","content":"q"}]`, string(got[0].Messages))
}

func (s *RecorderSuite) TestListUnknownConversation() {
	got, err := s.rec.List(context.Background(), "missing", 0)
	s.Require().NoError(err)
	s.NotNil(got)
	s.Empty(got)
}

func (s *RecorderSuite) TestEmptyMessagesStoredAsArray() {
	ctx := context.Background()
	conv := "empty-" + s.T().Name()
	s.Require().NoError(s.rec.Record(ctx, Transcript{ConversationID: conv, Input: "a", Answer: "b", CreatedAt: time.Now()}))
	got, err := s.rec.List(ctx, conv, 0)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.JSONEq(`[]`, string(got[0].Messages))
}

func TestSQLiteRecorder(t *testing.T) {
	suite.Run(t, &RecorderSuite{open: func(t *testing.T) Recorder {
		db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nested", "history.db"))
		require.NoError(t, err)
		return db
	}})
}

func TestPostgresRecorder(t *testing.T) {
	dsn := os.Getenv("MCPCLIENT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MCPCLIENT_TEST_POSTGRES_DSN not set")
	}
	suite.Run(t, &RecorderSuite{open: func(t *testing.T) Recorder {
		db, err := OpenPostgres(context.Background(), dsn)
		require.NoError(t, err)
		return db
	}})
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	db, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, db.Record(ctx, Transcript{ConversationID: "c", Input: "i", Answer: "a", CreatedAt: time.Now()}))
	require.NoError(t, db.Close())

	db, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer db.Close()
	got, err := db.List(ctx, "c", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	assert.NoError(t, r.Record(context.Background(), Transcript{}))
	got, err := r.List(context.Background(), "x", 1)
	assert.NoError(t, err)
	assert.Empty(t, got)
}
