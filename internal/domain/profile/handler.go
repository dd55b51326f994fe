package profile

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rxcheck/rxcheck/internal/platform/apperr"
	"github.com/rxcheck/rxcheck/internal/platform/auth"
	"github.com/rxcheck/rxcheck/pkg/pagination"
)

// Handler provides HTTP handlers for profiles and their history.
type Handler struct {
	svc *Service
}

// NewHandler creates a new profile handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the profile routes.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/profiles/:userId", h.GetProfile)
	g.PUT("/profiles/:userId", h.SaveProfile)
	g.GET("/profiles/:userId/reports", h.ListReports)
	g.GET("/profiles/:userId/call-logs", h.ListCallLogs)
}

func (h *Handler) userID(c echo.Context) (string, error) {
	userID := c.Param("userId")
	if err := auth.AuthorizeUser(c, userID); err != nil {
		return "", err
	}
	return userID, nil
}

func (h *Handler) GetProfile(c echo.Context) error {
	userID, err := h.userID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetProfile(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SaveProfile(c echo.Context) error {
	userID, err := h.userID(c)
	if err != nil {
		return err
	}
	var u ProfileUpdate
	if err := c.Bind(&u); err != nil {
		return apperr.Validation("Invalid profile payload.")
	}
	p, err := h.svc.SaveProfile(c.Request().Context(), userID, &u)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListReports(c echo.Context) error {
	userID, err := h.userID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListReports(c.Request().Context(), userID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Report{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL.Path))
}

func (h *Handler) ListCallLogs(c echo.Context) error {
	userID, err := h.userID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListCallLogs(c.Request().Context(), userID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*CallLog{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL.Path))
}
