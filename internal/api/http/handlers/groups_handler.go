package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/mythicmate/internal/api/dto"
	"github.com/spec-kit/mythicmate/internal/domain"
	"github.com/spec-kit/mythicmate/internal/events"
	"github.com/spec-kit/mythicmate/internal/service"
	apperrors "github.com/spec-kit/mythicmate/pkg/util/errorutil"
)

// GroupsHandler manages live groups.
type GroupsHandler struct {
	groups *service.GroupService
	router *service.ReactionRouter
}

// NewGroupsHandler constructs handler.
func NewGroupsHandler(groups *service.GroupService, router *service.ReactionRouter) *GroupsHandler {
	return &GroupsHandler{groups: groups, router: router}
}

// CreateGroup POST /api/groups.
func (h *GroupsHandler) CreateGroup(c *fiber.Ctx) error {
	var req dto.StartGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Creator == "" || req.ChannelID == "" || req.Activity == "" || req.Role == "" {
		return apperrors.NewValidationError("creator, channel_id, activity, role required", nil)
	}

	snap, err := h.groups.StartGroup(c.UserContext(), service.StartGroupInput{
		ServerID:   req.ServerID,
		ServerName: req.ServerName,
		ChannelID:  req.ChannelID,
		Creator:    domain.Identity(req.Creator),
		Activity:   req.Activity,
		Difficulty: req.Difficulty,
		Role:       req.Role,
		Schedule:   req.Schedule,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewGroupResponse(snap)})
}

// ListGroups GET /api/groups.
func (h *GroupsHandler) ListGroups(c *fiber.Ctx) error {
	snaps := h.groups.List()
	items := make([]dto.GroupResponse, 0, len(snaps))
	for _, snap := range snaps {
		items = append(items, dto.NewGroupResponse(snap))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetGroup GET /api/groups/:id.
func (h *GroupsHandler) GetGroup(c *fiber.Ctx) error {
	snap, err := h.groups.Get(domain.MessageID(c.Params("id")))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewGroupResponse(snap)})
}

// DeleteGroup DELETE /api/groups/:id.
func (h *GroupsHandler) DeleteGroup(c *fiber.Ctx) error {
	if err := h.groups.Teardown(c.UserContext(), domain.MessageID(c.Params("id")), events.CloseReasonTeardown); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// PostEvent POST /api/groups/:id/events applies a reaction as if it came from
// the platform and returns the group afterwards. A group that closed as a
// result has no body.
func (h *GroupsHandler) PostEvent(c *fiber.Ctx) error {
	var req dto.ReactionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	signal, ok := domain.ParseSignal(req.Signal)
	if !ok || req.UserID == "" {
		return apperrors.NewValidationError("user_id and a known signal required", map[string]any{"signal": req.Signal})
	}

	messageID := domain.MessageID(c.Params("id"))
	if _, err := h.groups.Get(messageID); err != nil {
		return err
	}
	err := h.router.HandleEvent(c.UserContext(), service.ReactionEvent{
		MessageID: messageID,
		Identity:  domain.Identity(req.UserID),
		Signal:    signal,
		Added:     req.Added,
	})
	if err != nil {
		return apperrors.MapError(err)
	}

	snap, err := h.groups.Get(messageID)
	if err != nil {
		return c.SendStatus(http.StatusAccepted)
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": dto.NewGroupResponse(snap)})
}

// ListActivities GET /api/activities.
func (h *GroupsHandler) ListActivities(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.groups.Activities()})
}
