package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"mammo-rag/internal/models"
)

const welcomeMessage = "Welcome to Breast Cancer Classification & Chatbot API"

type askRequest struct {
	Question string `json:"question" form:"question"`
}

func (s *Server) root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": welcomeMessage})
}

func (s *Server) predictImage(c echo.Context) error {
	if s.classifier == nil {
		return models.Errorf(models.ErrNotFound, "image classifier is not available")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"file\" is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot open uploaded file")
	}
	defer f.Close()

	limit := s.cfg.MaxUploadBytes
	if limit <= 0 {
		limit = 20 << 20
	}
	raw, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}
	if int64(len(raw)) > limit {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("image exceeds %d bytes", limit))
	}

	pred, err := s.classifier.Classify(c.Request().Context(), raw)
	if err != nil {
		return err
	}
	s.metrics.predictions.WithLabelValues(pred.Label).Inc()
	return c.JSON(http.StatusOK, map[string]string{
		"Prediction": pred.Label,
		"Confidence": fmt.Sprintf("%.0f%%", pred.Confidence),
	})
}

// askQuestion accepts the question as a query parameter, a form value or a
// JSON body.
func (s *Server) askQuestion(c echo.Context) error {
	question := c.QueryParam("question")
	if question == "" {
		var req askRequest
		if err := c.Bind(&req); err != nil {
			return err
		}
		question = req.Question
	}
	if strings.TrimSpace(question) == "" {
		return models.Errorf(models.ErrValidation, "question is required")
	}
	if s.asker == nil {
		return models.Errorf(models.ErrNotFound, "vector index is not loaded, run the index command first")
	}

	started := time.Now()
	answer, err := s.asker.Ask(c.Request().Context(), question)
	s.metrics.askDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"Answer": answer.Content})
}
