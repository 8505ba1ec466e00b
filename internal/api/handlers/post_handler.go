package handlers

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"github.com/crossposthq/crosspost/internal/queue"
	"github.com/crossposthq/crosspost/internal/repository"
	"github.com/crossposthq/crosspost/internal/service"
	"github.com/crossposthq/crosspost/internal/transfer"
)

type PostHandler struct {
	s           service.PostService
	AsynqClient *asynq.Client
}

func NewPostHandler(service service.PostService, asynqClient *asynq.Client) *PostHandler {
	return &PostHandler{s: service, AsynqClient: asynqClient}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	form, err := c.MultipartForm()
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse form",
		})
	}

	files := form.File["files"]

	postIDs, err := h.s.Create(c.Context(), userID, &transfer.PostCreation{
		Caption:      c.FormValue("caption"),
		Title:        c.FormValue("title"),
		ScheduledFor: c.FormValue("scheduled_for"),
		Accounts:     c.FormValue("accounts"),
	}, files)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message":  "Post created",
		"post_ids": postIDs,
	})
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID := c.QueryInt("id", 0)

	if postID != 0 {
		post, err := h.s.Info(c.Context(), int64(postID), userID)
		if err != nil {
			return errorResponse(c, err)
		}

		return c.Status(fiber.StatusOK).JSON(post)
	}

	filter := repository.PostFilter{
		Status:   c.Query("status"),
		Platform: c.Query("platform"),
	}
	if from := c.Query("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = &t
		}
	}
	if to := c.Query("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = &t
		}
	}

	posts, err := h.s.List(c.Context(), userID, filter)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) UpdatePost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID := c.QueryInt("id", 0)

	var upd transfer.PostUpdate
	if err := c.BodyParser(&upd); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	post, err := h.s.Update(c.Context(), userID, int64(postID), &upd)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID := c.QueryInt("id", 0)

	err := h.s.Remove(c.Context(), userID, int64(postID))
	if err != nil {
		return errorResponse(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}

// PublishPost queues an immediate publish of one post. The worker runs
// the same transition path as the dispatch sweep.
func (h *PostHandler) PublishPost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID, err := c.ParamsInt("id", 0)
	if err != nil || postID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid post id",
		})
	}

	err = queue.EnqueuePublish(h.AsynqClient, queue.PublishPostPayload{
		PostID: int64(postID),
		UserID: userID,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Error queueing publish",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Publish queued",
	})
}
