package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossposthq/crosspost/internal/apperrors"
	"github.com/crossposthq/crosspost/internal/service"
)

type stubDispatcher struct {
	result *service.PostResult
	err    error

	gotUserID int64
	gotPostID int64
}

func (s *stubDispatcher) Sweep(ctx context.Context) (*service.SweepReport, error) {
	return nil, errors.New("unexpected Sweep call")
}

func (s *stubDispatcher) PublishNow(ctx context.Context, userID, postID int64) (*service.PostResult, error) {
	s.gotUserID = userID
	s.gotPostID = postID
	return s.result, s.err
}

func publishTask(t *testing.T, payload PublishPostPayload) *asynq.Task {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(TaskTypePublishPost, raw)
}

func TestHandlePublishPostTask(t *testing.T) {
	d := &stubDispatcher{result: &service.PostResult{PostID: 5, Status: service.ResultPublished}}
	q := NewQueue(d)

	err := q.HandlePublishPostTask(context.Background(), publishTask(t, PublishPostPayload{PostID: 5, UserID: 7}))
	require.NoError(t, err)
	assert.Equal(t, int64(7), d.gotUserID)
	assert.Equal(t, int64(5), d.gotPostID)
}

func TestHandlePublishPostTaskDropsTaxonomyErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"validation", apperrors.NewValidation("post is not in a publishable state")},
		{"not found", apperrors.ErrNotFound},
		{"forbidden", apperrors.ErrForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := NewQueue(&stubDispatcher{err: tc.err})

			err := q.HandlePublishPostTask(context.Background(), publishTask(t, PublishPostPayload{PostID: 5, UserID: 7}))

			// completing the task keeps asynq from retrying a publish
			// that can never succeed
			assert.NoError(t, err)
		})
	}
}

func TestHandlePublishPostTaskRetriesInfrastructureErrors(t *testing.T) {
	infraErr := errors.New("connection refused")
	q := NewQueue(&stubDispatcher{err: infraErr})

	err := q.HandlePublishPostTask(context.Background(), publishTask(t, PublishPostPayload{PostID: 5, UserID: 7}))
	assert.ErrorIs(t, err, infraErr)
}
