package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/mythicmate/internal/api/dto"
	"github.com/spec-kit/mythicmate/internal/domain"
	"github.com/spec-kit/mythicmate/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// StatsHandler serves completed-run statistics.
type StatsHandler struct {
	stats *service.StatsService
}

// NewStatsHandler constructs handler.
func NewStatsHandler(stats *service.StatsService) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// UserStats GET /api/stats/:server/users/:user.
func (h *StatsHandler) UserStats(c *fiber.Ctx) error {
	stats, err := h.stats.UserStats(c.UserContext(), c.Params("server"), domain.Identity(c.Params("user")))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserStatsResponse(stats)})
}

// Leaderboard GET /api/stats/:server/leaderboard?category=&timeframe=.
func (h *StatsHandler) Leaderboard(c *fiber.Ctx) error {
	category, timeframe, err := service.ParseLeaderboardQuery(c.Query("category"), c.Query("timeframe"))
	if err != nil {
		return err
	}
	server := c.Params("server")
	entries, err := h.stats.Leaderboard(c.UserContext(), server, category, timeframe)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewLeaderboardResponse(server, category, timeframe, entries)})
}

// ExportRuns GET /api/stats/:server/export.
func (h *StatsHandler) ExportRuns(c *fiber.Ctx) error {
	server := c.Params("server")
	data, err := h.stats.ExportRuns(c.UserContext(), server)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=\"runs-%s.xlsx\"", server))
	return c.Send(data)
}
