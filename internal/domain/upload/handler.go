package upload

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rxcheck/rxcheck/internal/platform/apperr"
	"github.com/rxcheck/rxcheck/internal/platform/auth"
)

// Handler exposes the document upload endpoint.
type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.With().Str("component", "upload-handler").Logger()}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/upload", h.Upload)
}

type uploadResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
	OCRText string `json:"ocrText"`
}

// Upload handles POST /upload with a multipart "file" field and an optional
// "userId" field.
func (h *Handler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "No file uploaded.")
	}

	userID := c.FormValue("userId")
	if userID == "" {
		userID = auth.UserIDFromContext(c.Request().Context())
	}
	if err := auth.AuthorizeUser(c, userID); err != nil {
		return err
	}

	f, err := fh.Open()
	if err != nil {
		h.logger.Error().Err(err).Str("file_name", fh.Filename).Msg("open multipart file")
		return echo.NewHTTPError(http.StatusInternalServerError, uploadFailedMessage)
	}
	defer f.Close()

	res, err := h.svc.Upload(c.Request().Context(), File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		UserID:      userID,
		Content:     f,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			return err
		}
		return echo.NewHTTPError(http.StatusInternalServerError, uploadFailedMessage)
	}
	return c.JSON(http.StatusOK, uploadResponse{Success: true, URL: res.URL, OCRText: res.OCRText})
}
