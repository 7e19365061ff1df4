package apiclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mammo-rag/internal/config"
	"mammo-rag/internal/models"
)

func TestAsk(t *testing.T) {
	t.Run("Sends the question as a query parameter", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/ask-question", r.URL.Path)
			assert.Equal(t, "what is a mammogram?", r.URL.Query().Get("question"))
			_, _ = w.Write([]byte(`{"Answer":"An x-ray of the breast."}`))
		}))
		defer srv.Close()

		answer, err := New(&config.ClientConfig{APIURL: srv.URL + "/"}).Ask(context.Background(), "what is a mammogram?")

		require.NoError(t, err)
		assert.Equal(t, "An x-ray of the breast.", answer)
	})

	t.Run("Error body is surfaced", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"vector index is not loaded"}`))
		}))
		defer srv.Close()

		_, err := New(&config.ClientConfig{APIURL: srv.URL}).Ask(context.Background(), "q")

		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrService))
		assert.Contains(t, err.Error(), "vector index is not loaded")
	})

	t.Run("Bad request maps to validation", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"question is required"}`))
		}))
		defer srv.Close()

		_, err := New(&config.ClientConfig{APIURL: srv.URL}).Ask(context.Background(), "")

		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrValidation))
	})

	t.Run("Client timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer srv.Close()
		defer close(release)

		_, err := New(&config.ClientConfig{APIURL: srv.URL, Timeout: 50 * time.Millisecond}).Ask(context.Background(), "q")

		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrService))
	})
}

func TestPredictFile(t *testing.T) {
	t.Run("Uploads the file field", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/predict-image", r.URL.Path)
			f, fh, err := r.FormFile("file")
			require.NoError(t, err)
			defer f.Close()
			data, _ := io.ReadAll(f)
			assert.Equal(t, "scan.png", fh.Filename)
			assert.Equal(t, "pixels", string(data))
			_, _ = w.Write([]byte(`{"Prediction":"benign","Confidence":"99%"}`))
		}))
		defer srv.Close()

		path := filepath.Join(t.TempDir(), "scan.png")
		require.NoError(t, os.WriteFile(path, []byte("pixels"), 0o644))

		resp, err := New(&config.ClientConfig{APIURL: srv.URL}).PredictFile(context.Background(), path)

		require.NoError(t, err)
		assert.Equal(t, &PredictResponse{Prediction: "benign", Confidence: "99%"}, resp)
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := New(&config.ClientConfig{APIURL: "http://localhost:1"}).PredictFile(context.Background(), filepath.Join(t.TempDir(), "none.png"))

		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrNotFound))
	})
}
