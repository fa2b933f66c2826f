package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"sbb/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateQuestionSubjectLength(t *testing.T) {
	forum := newTestForum(t)
	ctx := context.Background()

	q, err := forum.CreateQuestion(ctx, strings.Repeat("a", 200), "body", time.Time{})
	require.NoError(t, err)
	assert.NotZero(t, q.ID)
	assert.Len(t, q.Subject, 200)

	_, err = forum.CreateQuestion(ctx, strings.Repeat("a", 201), "body", time.Time{})
	require.ErrorIs(t, err, ErrValidation)
	assert.EqualError(t, err, "subject must be at most 200 characters")

	// The limit counts characters, not bytes.
	_, err = forum.CreateQuestion(ctx, strings.Repeat("질", 200), "body", time.Time{})
	require.NoError(t, err)
	_, err = forum.CreateQuestion(ctx, strings.Repeat("질", 201), "body", time.Time{})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateQuestionRequiresText(t *testing.T) {
	forum := newTestForum(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		subject string
		content string
		field   string
	}{
		{name: "empty subject", subject: "", content: "body", field: "subject"},
		{name: "empty content", subject: "subject", content: "", field: "content"},
		{name: "nul in subject", subject: "a\x00b", content: "body", field: "subject"},
		{name: "nul in content", subject: "subject", content: "body\x00", field: "content"},
		{name: "invalid utf-8 subject", subject: "caf\xe9", content: "body", field: "subject"},
		{name: "invalid utf-8 content", subject: "subject", content: "\xff\xfe", field: "content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := forum.CreateQuestion(ctx, tt.subject, tt.content, time.Time{})
			require.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	questions, err := forum.ListQuestions(ctx)
	require.NoError(t, err)
	assert.Empty(t, questions)
}

func TestGetQuestionRoundTrip(t *testing.T) {
	forum := newTestForum(t)
	ctx := context.Background()

	createdAt := time.Date(2023, 4, 1, 21, 30, 15, 123456789, time.FixedZone("KST", 9*60*60))
	created, err := forum.CreateQuestion(ctx, "What is sbb?", "Tell me about sbb.", createdAt)
	require.NoError(t, err)
	assert.True(t, created.CreateDate.Equal(createdAt.Truncate(time.Microsecond)))

	got, err := forum.GetQuestion(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "What is sbb?", got.Subject)
	assert.Equal(t, "Tell me about sbb.", got.Content)
	assert.True(t, created.CreateDate.Equal(got.CreateDate), "want %v, got %v", created.CreateDate, got.CreateDate)
	assert.Empty(t, got.Answers)
}

func TestCreateQuestionDefaultsCreateDateToNow(t *testing.T) {
	forum := newTestForum(t)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	forum.now = func() time.Time { return now }

	q, err := forum.CreateQuestion(context.Background(), "subject", "content", time.Time{})
	require.NoError(t, err)
	assert.True(t, q.CreateDate.Equal(now))
}

func TestGetQuestionNotFound(t *testing.T) {
	forum := newTestForum(t)

	_, err := forum.GetQuestion(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, "question 42 not found")
}

func TestListQuestionsNewestFirst(t *testing.T) {
	forum := newTestForum(t)
	ctx := context.Background()

	var ids []uint
	for _, subject := range []string{"first", "second", "third"} {
		q, err := forum.CreateQuestion(ctx, subject, "content", time.Time{})
		require.NoError(t, err)
		ids = append(ids, q.ID)
	}
	_, err := forum.CreateAnswer(ctx, ids[0], "an answer", time.Time{})
	require.NoError(t, err)

	first, err := forum.ListQuestions(ctx)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, []uint{ids[2], ids[1], ids[0]}, []uint{first[0].ID, first[1].ID, first[2].ID})
	assert.Empty(t, first[2].Answers)

	again, err := forum.ListQuestions(ctx)
	require.NoError(t, err)
	require.Len(t, again, 3)
	for i := range first {
		assert.Equal(t, first[i].ID, again[i].ID)
		assert.Equal(t, first[i].Subject, again[i].Subject)
	}
}

func TestUpdateQuestion(t *testing.T) {
	forum := newTestForum(t)
	ctx := context.Background()

	created, err := forum.CreateQuestion(ctx, "old subject", "old content", time.Time{})
	require.NoError(t, err)
	_, err = forum.CreateAnswer(ctx, created.ID, "answer", time.Time{})
	require.NoError(t, err)

	updated, err := forum.UpdateQuestion(ctx, created.ID, "new subject", "new content")
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "new subject", updated.Subject)
	assert.Equal(t, "new content", updated.Content)
	assert.True(t, created.CreateDate.Equal(updated.CreateDate))
	assert.Len(t, updated.Answers, 1)

	_, err = forum.UpdateQuestion(ctx, created.ID, strings.Repeat("x", 201), "content")
	require.ErrorIs(t, err, ErrValidation)

	_, err = forum.UpdateQuestion(ctx, created.ID+100, "subject", "content")
	require.ErrorIs(t, err, ErrNotFound)

	got, err := forum.GetQuestion(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "new subject", got.Subject)
}

func TestDeleteQuestionCascadesToAnswers(t *testing.T) {
	forum := newTestForum(t)
	ctx := context.Background()

	doomed, err := forum.CreateQuestion(ctx, "doomed", "content", time.Time{})
	require.NoError(t, err)
	survivor, err := forum.CreateQuestion(ctx, "survivor", "content", time.Time{})
	require.NoError(t, err)

	var doomedAnswers []uint
	for i := 0; i < 3; i++ {
		a, err := forum.CreateAnswer(ctx, doomed.ID, "answer", time.Time{})
		require.NoError(t, err)
		doomedAnswers = append(doomedAnswers, a.ID)
	}
	kept, err := forum.CreateAnswer(ctx, survivor.ID, "kept", time.Time{})
	require.NoError(t, err)

	require.NoError(t, forum.DeleteQuestion(ctx, doomed.ID))

	_, err = forum.GetQuestion(ctx, doomed.ID)
	require.ErrorIs(t, err, ErrNotFound)
	for _, id := range doomedAnswers {
		_, err := forum.GetAnswer(ctx, id)
		require.ErrorIs(t, err, ErrNotFound, "answer %d", id)
	}

	var orphans int64
	require.NoError(t, forum.db.Model(&models.Answer{}).Where("question_id = ?", doomed.ID).Count(&orphans).Error)
	assert.Zero(t, orphans)

	got, err := forum.GetAnswer(ctx, kept.ID)
	require.NoError(t, err)
	assert.Equal(t, survivor.ID, got.QuestionID)

	err = forum.DeleteQuestion(ctx, doomed.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIdentifiersAreNeverReused(t *testing.T) {
	forum := newTestForum(t)
	ctx := context.Background()

	var last *models.Question
	for i := 0; i < 5; i++ {
		q, err := forum.CreateQuestion(ctx, "subject", "content", time.Time{})
		require.NoError(t, err)
		last = q
	}
	a, err := forum.CreateAnswer(ctx, last.ID, "answer", time.Time{})
	require.NoError(t, err)

	require.NoError(t, forum.DeleteQuestion(ctx, last.ID))

	next, err := forum.CreateQuestion(ctx, "subject", "content", time.Time{})
	require.NoError(t, err)
	assert.Greater(t, next.ID, last.ID)

	nextAnswer, err := forum.CreateAnswer(ctx, next.ID, "answer", time.Time{})
	require.NoError(t, err)
	assert.Greater(t, nextAnswer.ID, a.ID)
}

func TestForumServiceAppliesTimeout(t *testing.T) {
	forum := NewForumService(newTestDB(t), nil, nil, zerolog.Nop(), 5*time.Second)

	ctx, cancel := forum.withTimeout(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(5*time.Second), deadline, time.Second)

	unbounded := newTestForum(t)
	ctx, cancel = unbounded.withTimeout(context.Background())
	defer cancel()
	_, ok = ctx.Deadline()
	assert.False(t, ok)
}

func TestForumServiceHonorsExpiredContext(t *testing.T) {
	forum := newTestForum(t)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := forum.CreateQuestion(ctx, "subject", "content", time.Time{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestForumServiceCachesQuestions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	forum := NewForumService(newTestDB(t), NewRedisQuestionCache(client, time.Minute), nil, zerolog.Nop(), 0)
	ctx := context.Background()

	q, err := forum.CreateQuestion(ctx, "cached", "content", time.Time{})
	require.NoError(t, err)
	key := questionKey(q.ID)
	assert.False(t, mr.Exists(key))

	_, err = forum.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.True(t, mr.Exists(key))

	// A change that bypasses the service is hidden by the cache.
	require.NoError(t, forum.db.Model(&models.Question{}).Where("id = ?", q.ID).Update("subject", "behind").Error)
	got, err := forum.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "cached", got.Subject)

	_, err = forum.CreateAnswer(ctx, q.ID, "answer", time.Time{})
	require.NoError(t, err)
	assert.False(t, mr.Exists(key))

	got, err = forum.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "behind", got.Subject)
	assert.Len(t, got.Answers, 1)

	require.NoError(t, forum.DeleteQuestion(ctx, q.ID))
	assert.False(t, mr.Exists(key))
	_, err = forum.GetQuestion(ctx, q.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestForumServiceSurvivesCacheOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	forum := NewForumService(newTestDB(t), NewRedisQuestionCache(client, time.Minute), nil, zerolog.Nop(), 0)
	ctx := context.Background()

	q, err := forum.CreateQuestion(ctx, "subject", "content", time.Time{})
	require.NoError(t, err)

	mr.Close()

	got, err := forum.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, q.ID, got.ID)

	// Mutations of existing questions roll back while the cache cannot be
	// invalidated.
	require.Error(t, forum.DeleteQuestion(ctx, q.ID))
	_, err = forum.CreateAnswer(ctx, q.ID, "answer", time.Time{})
	require.Error(t, err)
	_, err = forum.UpdateQuestion(ctx, q.ID, "changed", "content")
	require.Error(t, err)

	got, err = forum.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "subject", got.Subject)
	assert.Empty(t, got.Answers)
}

// heldCache blocks Set until release is closed.
type heldCache struct {
	*RedisQuestionCache
	setting chan struct{}
	release chan struct{}
}

func (c *heldCache) Set(ctx context.Context, question *models.Question, version int64) error {
	close(c.setting)
	<-c.release
	return c.RedisQuestionCache.Set(ctx, question, version)
}

func TestDeletedQuestionIsNotRecachedByConcurrentRead(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cache := &heldCache{
		RedisQuestionCache: NewRedisQuestionCache(client, time.Minute),
		setting:            make(chan struct{}),
		release:            make(chan struct{}),
	}
	forum := NewForumService(newTestDB(t), cache, nil, zerolog.Nop(), 0)
	ctx := context.Background()

	q, err := forum.CreateQuestion(ctx, "subject", "content", time.Time{})
	require.NoError(t, err)
	a, err := forum.CreateAnswer(ctx, q.ID, "answer", time.Time{})
	require.NoError(t, err)

	type result struct {
		question *models.Question
		err      error
	}
	read := make(chan result, 1)
	go func() {
		got, err := forum.GetQuestion(ctx, q.ID)
		read <- result{got, err}
	}()

	// The read has loaded the question and its answer and waits in Set.
	<-cache.setting
	require.NoError(t, forum.DeleteQuestion(ctx, q.ID))
	close(cache.release)

	r := <-read
	require.NoError(t, r.err)
	require.Len(t, r.question.Answers, 1)
	assert.False(t, mr.Exists(questionKey(q.ID)))

	_, err = forum.GetQuestion(ctx, q.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = forum.GetAnswer(ctx, a.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestForumServicePublishesEvents(t *testing.T) {
	events := &recordingPublisher{}
	forum := NewForumService(newTestDB(t), nil, events, zerolog.Nop(), 0)
	ctx := context.Background()

	q, err := forum.CreateQuestion(ctx, "subject", "content", time.Time{})
	require.NoError(t, err)
	a, err := forum.CreateAnswer(ctx, q.ID, "answer", time.Time{})
	require.NoError(t, err)
	_, err = forum.UpdateAnswer(ctx, a.ID, "edited")
	require.NoError(t, err)
	_, err = forum.UpdateQuestion(ctx, q.ID, "subject 2", "content 2")
	require.NoError(t, err)
	require.NoError(t, forum.DeleteAnswer(ctx, a.ID))
	require.NoError(t, forum.DeleteQuestion(ctx, q.ID))

	// Failed operations publish nothing.
	_, err = forum.CreateAnswer(ctx, q.ID, "late", time.Time{})
	require.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{
		EventQuestionCreated,
		EventAnswerCreated,
		EventAnswerUpdated,
		EventQuestionUpdated,
		EventAnswerDeleted,
		EventQuestionDeleted,
	}, events.types())
	for _, e := range events.events {
		assert.Equal(t, q.ID, e.QuestionID, e.Type)
	}
}
