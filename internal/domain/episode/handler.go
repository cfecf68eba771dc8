package episode

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/woundcare/internal/domain/coverage"
	"github.com/ehr/woundcare/internal/platform/audit"
	"github.com/ehr/woundcare/internal/platform/auth"
)

const maxBatchSize = 100

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	clinical := api.Group("", auth.RequireRole("physician", "nurse", "wound_specialist"))
	clinical.POST("/episodes/evaluate", h.Evaluate)
	clinical.POST("/episodes/evaluate/batch", h.EvaluateBatch)

	// Area-only compliance is also used by billing staff.
	billing := api.Group("", auth.RequireRole("physician", "nurse", "wound_specialist", "billing"))
	billing.POST("/coverage/compliance", h.Compliance)
}

func (h *Handler) Evaluate(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.Evaluate(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) EvaluateBatch(c echo.Context) error {
	var reqs []Request
	if err := c.Bind(&reqs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(reqs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "batch is empty")
	}
	if len(reqs) > maxBatchSize {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("batch exceeds %d episodes", maxBatchSize))
	}
	items, err := h.svc.EvaluateBatch(c.Request().Context(), reqs)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"items": items,
		"total": len(items),
	})
}

type complianceResponse struct {
	Assessment coverage.ComplianceAssessment `json:"assessment"`
	AuditTrail audit.Trail                   `json:"audit_trail"`
}

func (h *Handler) Compliance(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	assessment, trail, err := h.svc.Compliance(body)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, complianceResponse{Assessment: assessment, AuditTrail: trail})
}

func mapError(err error) error {
	if errors.Is(err, audit.ErrInvariantViolation) {
		return echo.NewHTTPError(http.StatusInternalServerError, "evaluation aborted: invariant violation")
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}
