package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/kwestby/ciwatch/internal/logger"
)

// defaultRunsLimit bounds the dashboard run listing when no limit is given.
const (
	defaultRunsLimit = 50
	maxRunsLimit     = 500
)

// TriggerSync runs one poll invocation for a repository. A mid-poll
// upstream failure returns 502 with the partial result embedded: rows
// fetched before the failure stay committed.
func (c *Controller) TriggerSync(ctx echo.Context) error {
	repo := repoParam(ctx)
	if repo == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Repository key is required"})
	}

	var pageHint int
	if pagesParam := ctx.QueryParam("pages"); pagesParam != "" {
		v, err := strconv.Atoi(pagesParam)
		if err != nil || v < 1 {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid pages parameter"})
		}
		pageHint = v
	}

	result, err := c.pipeline.SyncRepository(ctx.Request().Context(), repo, pageHint)
	if err != nil {
		c.log.Error("repository sync failed",
			logger.String("repo", repo),
			logger.Int("rows_upserted", result.RowsUpserted),
			logger.Error(err))
		return ctx.JSON(http.StatusBadGateway, map[string]any{
			"error":  "Sync failed; rows fetched before the failure remain committed",
			"result": result,
		})
	}

	return ctx.JSON(http.StatusOK, result)
}

// ListRuns returns recently ingested runs for a repository, newest first.
func (c *Controller) ListRuns(ctx echo.Context) error {
	repo := repoParam(ctx)
	if repo == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Repository key is required"})
	}

	limit := defaultRunsLimit
	if limitParam := ctx.QueryParam("limit"); limitParam != "" {
		v, err := strconv.Atoi(limitParam)
		if err == nil && v > 0 {
			limit = min(v, maxRunsLimit)
		}
	}

	runs, err := c.runRepo.ListRecentRuns(ctx.Request().Context(), repo, limit)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list runs", http.StatusInternalServerError)
	}

	total, err := c.runRepo.CountRuns(ctx.Request().Context(), repo)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to count runs", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"runs":  runs,
		"total": total,
	})
}
