package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/echoboardhq/echoboard/internal/pkg/cascade"
	"github.com/echoboardhq/echoboard/internal/pkg/dispatch"
	"github.com/echoboardhq/echoboard/internal/pkg/hooks"
	"github.com/echoboardhq/echoboard/internal/pkg/usercontext"
)

var (
	eventDispatcher     *dispatch.Dispatcher
	archiveOrchestrator *cascade.Orchestrator
)

// InitializeEventController wires the event and cascade handlers.
func InitializeEventController(dispatcher *dispatch.Dispatcher, orchestrator *cascade.Orchestrator) {
	eventDispatcher = dispatcher
	archiveOrchestrator = orchestrator
}

type raiseEventRequest struct {
	Type string         `json:"type" validate:"required,oneof=post.created post.status_changed post.deleted"`
	Data map[string]any `json:"data"`
}

// HandleRaiseEvent accepts a domain event and fans it out asynchronously.
// The response never waits for provider calls: the event is accepted the
// moment it is valid, and delivery failures only show up on connection
// health.
func HandleRaiseEvent(c *fiber.Ctx) error {
	var req raiseEventRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if err := validateStruct(&req); err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}

	userCtx := usercontext.GetUserContext(c)
	eventDispatcher.Raise(userCtx.WorkspaceID, hooks.Event{Type: req.Type, Data: req.Data})

	log.Debugf("[Event] workspace %d raised %s", userCtx.WorkspaceID, req.Type)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": true, "type": req.Type})
}

// HandleCascadeLinks is the query phase of deleting a post: every active
// external link, each flagged with the connection's suggested default, so
// the UI can render the confirmation checklist.
func HandleCascadeLinks(c *fiber.Ctx) error {
	postID, err := parseUintParam(c, "id")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid post id")
	}

	views, err := archiveOrchestrator.LinkedRecords(usercontext.GetWorkspaceID(c), postID)
	if err != nil {
		log.Errorf("[Cascade] links for post %d: %v", postID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load linked records")
	}
	return c.JSON(fiber.Map{"post_id": postID, "links": views})
}

type cascadeExecuteRequest struct {
	Choices []cascade.Choice `json:"choices" validate:"required,dive"`
}

// HandleCascadeExecute is the execute phase: archive the chosen links and
// report per-link outcomes. The post deletion itself happened before this
// call; nothing here can undo or block it.
func HandleCascadeExecute(c *fiber.Ctx) error {
	postID, err := parseUintParam(c, "id")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid post id")
	}

	var req cascadeExecuteRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if err := validateStruct(&req); err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}

	results := archiveOrchestrator.Execute(c.Context(), usercontext.GetWorkspaceID(c), req.Choices)
	log.Infof("[Cascade] post %d: executed %d archive choices", postID, len(results))
	return c.JSON(fiber.Map{"post_id": postID, "results": results})
}
