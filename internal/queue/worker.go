package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/hibiken/asynq"

	"github.com/crossposthq/crosspost/internal/apperrors"
)

// HandlePublishPostTask runs one immediate publish. Taxonomy errors are
// not retriable, so they complete the task; only infrastructure errors
// bubble up for asynq's retry machinery.
func (q *Queue) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	result, err := q.d.PublishNow(ctx, payload.UserID, payload.PostID)
	if err != nil {
		var validationErr *apperrors.ValidationError
		if errors.As(err, &validationErr) ||
			errors.Is(err, apperrors.ErrNotFound) ||
			errors.Is(err, apperrors.ErrForbidden) {
			log.Printf("Publish task for post %d dropped: %v", payload.PostID, err)
			return nil
		}
		return err
	}

	log.Printf("Publish task for post %d finished with status %s", payload.PostID, result.Status)
	return nil
}
