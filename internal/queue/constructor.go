package queue

import (
	"github.com/crossposthq/crosspost/internal/service"
)

// Queue holds the worker-side dependencies for the immediate-publish
// task.
type Queue struct {
	d service.DispatcherService
}

func NewQueue(d service.DispatcherService) *Queue {
	return &Queue{d: d}
}

const TaskTypePublishPost = "publish:post"

type PublishPostPayload struct {
	PostID int64 `json:"post_id"`
	UserID int64 `json:"user_id"`
}
