package review

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/woundcare/internal/platform/auth"
	"github.com/ehr/woundcare/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("physician", "nurse", "wound_specialist"))
	readGroup.GET("/reviews", h.ListReviews)
	readGroup.GET("/reviews/:id", h.GetReview)

	writeGroup := api.Group("", auth.RequireRole("physician", "nurse", "wound_specialist"))
	writeGroup.POST("/reviews/:id/assign", h.Assign)
	writeGroup.POST("/reviews/:id/start", h.Start)
	writeGroup.POST("/reviews/:id/acknowledge", h.Acknowledge)
	writeGroup.POST("/reviews/:id/decide", h.Decide)
	writeGroup.POST("/reviews/:id/escalate", h.Escalate)

	// Dismissal closes an alert without action and is restricted.
	dismissGroup := api.Group("", auth.RequireRole("physician", "wound_specialist"))
	dismissGroup.POST("/reviews/:id/dismiss", h.Dismiss)
}

// transitionRequest is the body of every transition endpoint; each uses the
// fields it needs.
type transitionRequest struct {
	Clinician string `json:"clinician"`
	Decision  string `json:"decision"`
	Note      string `json:"note"`
	Rationale string `json:"rationale"`
	Reason    string `json:"reason"`
}

func (h *Handler) ListReviews(c echo.Context) error {
	pg := pagination.FromContext(c)
	var status Status
	if s := c.QueryParam("status"); s != "" {
		st, err := ParseStatus(s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		status = st
	}
	items, total, err := h.svc.List(c.Request().Context(), status, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetReview(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Assign(c echo.Context) error {
	return h.transition(c, func(id uuid.UUID, actor string, req transitionRequest) (*Review, error) {
		return h.svc.Assign(c.Request().Context(), id, req.Clinician, actor)
	})
}

func (h *Handler) Start(c echo.Context) error {
	return h.transition(c, func(id uuid.UUID, actor string, _ transitionRequest) (*Review, error) {
		return h.svc.Start(c.Request().Context(), id, actor)
	})
}

func (h *Handler) Acknowledge(c echo.Context) error {
	return h.transition(c, func(id uuid.UUID, actor string, req transitionRequest) (*Review, error) {
		return h.svc.Acknowledge(c.Request().Context(), id, actor, req.Note)
	})
}

func (h *Handler) Decide(c echo.Context) error {
	return h.transition(c, func(id uuid.UUID, actor string, req transitionRequest) (*Review, error) {
		return h.svc.Decide(c.Request().Context(), id, Status(req.Decision), actor, req.Rationale)
	})
}

func (h *Handler) Escalate(c echo.Context) error {
	return h.transition(c, func(id uuid.UUID, actor string, req transitionRequest) (*Review, error) {
		return h.svc.Escalate(c.Request().Context(), id, actor, req.Reason)
	})
}

func (h *Handler) Dismiss(c echo.Context) error {
	return h.transition(c, func(id uuid.UUID, actor string, req transitionRequest) (*Review, error) {
		return h.svc.Dismiss(c.Request().Context(), id, actor, req.Reason)
	})
}

func (h *Handler) transition(c echo.Context, fn func(id uuid.UUID, actor string, req transitionRequest) (*Review, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req transitionRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	actor := auth.UserIDFromContext(c.Request().Context())
	if actor == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
	}
	r, err := fn(id, actor, req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "review not found")
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
