package queue

import (
	"encoding/json"
	"log"

	"github.com/hibiken/asynq"
)

func EnqueuePublish(asynqClient *asynq.Client, payload PublishPostPayload) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePublishPost, taskPayload)

	_, err = asynqClient.Enqueue(task)
	if err != nil {
		return err
	}

	log.Printf("Publish task enqueued: %+v", payload)
	return nil
}
