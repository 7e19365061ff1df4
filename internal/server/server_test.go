package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mammo-rag/internal/classifier"
	"mammo-rag/internal/config"
	"mammo-rag/internal/models"
)

type stubAsker struct {
	question string
	answer   string
	err      error
}

func (s *stubAsker) Ask(_ context.Context, question string) (*models.Answer, error) {
	s.question = question
	if s.err != nil {
		return nil, s.err
	}
	return &models.Answer{Question: question, Content: s.answer}, nil
}

type stubClassifier struct {
	raw  []byte
	pred *models.Prediction
	err  error
}

func (s *stubClassifier) Classify(_ context.Context, raw []byte) (*models.Prediction, error) {
	s.raw = raw
	return s.pred, s.err
}

type fixedNetwork struct{ calls int }

func (f *fixedNetwork) Predict(context.Context, *classifier.Tensor) (float64, error) {
	f.calls++
	return 0.5, nil
}

func newTestServer(asker Asker, cls ImageClassifier) *Server {
	return New(&config.ServerConfig{Address: ":0", MaxUploadBytes: 1 << 10}, asker, cls)
}

func do(t *testing.T, s *Server, req *http.Request) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	var body map[string]string
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func uploadRequest(t *testing.T, field string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, "scan.png")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/predict-image", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestRoot(t *testing.T) {
	rec, body := do(t, newTestServer(nil, nil), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Breast Cancer Classification & Chatbot API", body["message"])
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestPredictImage(t *testing.T) {
	t.Run("Returns label and rounded confidence", func(t *testing.T) {
		cls := &stubClassifier{pred: &models.Prediction{Label: models.LabelMalignant, Confidence: 87.6}}
		s := newTestServer(nil, cls)

		rec, body := do(t, s, uploadRequest(t, "file", []byte("image-bytes")))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]string{"Prediction": "malignant", "Confidence": "88%"}, body)
		assert.Equal(t, []byte("image-bytes"), cls.raw)
	})

	t.Run("Malformed image is a bad request", func(t *testing.T) {
		s := newTestServer(nil, &stubClassifier{err: models.Errorf(models.ErrDecode, "image: unknown format")})

		rec, body := do(t, s, uploadRequest(t, "file", []byte("junk")))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, body["error"], "unknown format")
	})

	t.Run("Image declaring huge dimensions is a bad request", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))
		raw := buf.Bytes()
		binary.BigEndian.PutUint32(raw[16:20], 20000)
		binary.BigEndian.PutUint32(raw[20:24], 20000)
		binary.BigEndian.PutUint32(raw[29:33], crc32.ChecksumIEEE(raw[12:29]))
		network := &fixedNetwork{}
		s := newTestServer(nil, classifier.New(network, models.DefaultThreshold, 0))

		rec, body := do(t, s, uploadRequest(t, "file", raw))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, body["error"], "pixel limit")
		assert.Zero(t, network.calls)
	})

	t.Run("Missing file field", func(t *testing.T) {
		s := newTestServer(nil, &stubClassifier{})

		rec, _ := do(t, s, uploadRequest(t, "image", []byte("x")))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Oversized upload", func(t *testing.T) {
		s := newTestServer(nil, &stubClassifier{})

		rec, _ := do(t, s, uploadRequest(t, "file", bytes.Repeat([]byte{1}, 2<<10)))

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("Model server failure is a bad gateway", func(t *testing.T) {
		s := newTestServer(nil, &stubClassifier{err: models.Errorf(models.ErrService, "connection refused")})

		rec, _ := do(t, s, uploadRequest(t, "file", []byte("x")))

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestAskQuestion(t *testing.T) {
	t.Run("Question as query parameter", func(t *testing.T) {
		asker := &stubAsker{answer: "Screening every two years."}
		s := newTestServer(asker, nil)

		req := httptest.NewRequest(http.MethodPost, "/ask-question?question="+url.QueryEscape("How often?"), nil)
		rec, body := do(t, s, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Screening every two years.", body["Answer"])
		assert.Equal(t, "How often?", asker.question)
	})

	t.Run("Question as JSON body", func(t *testing.T) {
		asker := &stubAsker{answer: "ok"}
		s := newTestServer(asker, nil)

		req := httptest.NewRequest(http.MethodPost, "/ask-question", strings.NewReader(`{"question":"What is BRCA?"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec, body := do(t, s, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", body["Answer"])
		assert.Equal(t, "What is BRCA?", asker.question)
	})

	t.Run("Blank question", func(t *testing.T) {
		asker := &stubAsker{}
		s := newTestServer(asker, nil)

		rec, _ := do(t, s, httptest.NewRequest(http.MethodPost, "/ask-question?question=%20%20", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, asker.question)
	})

	t.Run("Index not loaded", func(t *testing.T) {
		s := newTestServer(nil, nil)

		rec, body := do(t, s, httptest.NewRequest(http.MethodPost, "/ask-question?question=hi", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, body["error"], "index")
	})

	t.Run("Upstream failure", func(t *testing.T) {
		s := newTestServer(&stubAsker{err: models.Errorf(models.ErrService, "quota exceeded")}, nil)

		rec, _ := do(t, s, httptest.NewRequest(http.MethodPost, "/ask-question?question=hi", nil))

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("Missing credential is an internal error", func(t *testing.T) {
		s := newTestServer(&stubAsker{err: models.Errorf(models.ErrConfig, "chat credential not set")}, nil)

		rec, body := do(t, s, httptest.NewRequest(http.MethodPost, "/ask-question?question=hi", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, body["error"], "credential")
	})
}

func TestMetrics(t *testing.T) {
	cls := &stubClassifier{pred: &models.Prediction{Label: models.LabelBenign, Confidence: 99.6}}
	s := newTestServer(&stubAsker{answer: "a"}, cls)

	do(t, s, uploadRequest(t, "file", []byte("x")))
	do(t, s, httptest.NewRequest(http.MethodPost, "/ask-question?question=hi", nil))
	do(t, s, httptest.NewRequest(http.MethodPost, "/ask-question", nil))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	out := rec.Body.String()

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, out, `predictions_total{label="benign"} 1`)
	assert.Contains(t, out, `http_requests_total{method="POST",path="/ask-question",status="200"} 1`)
	assert.Contains(t, out, `http_requests_total{method="POST",path="/ask-question",status="400"} 1`)
	assert.Contains(t, out, "rag_ask_duration_seconds_count 1")
}

func TestHTTPError(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{models.Errorf(models.ErrValidation, "x"), http.StatusBadRequest},
		{models.Errorf(models.ErrDecode, "x"), http.StatusBadRequest},
		{models.Errorf(models.ErrNotFound, "x"), http.StatusServiceUnavailable},
		{models.Errorf(models.ErrService, "x"), http.StatusBadGateway},
		{models.Errorf(models.ErrIO, "x"), http.StatusInternalServerError},
		{echo.NewHTTPError(http.StatusTeapot, "brew"), http.StatusTeapot},
	}
	for _, tc := range cases {
		code, _ := httpError(tc.err)
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}
