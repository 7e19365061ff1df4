package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mammo-rag/internal/config"
	"mammo-rag/internal/models"
)

// Client talks to the classification and question answering API.
type Client struct {
	baseURL string
	http    *http.Client
}

type PredictResponse struct {
	Prediction string `json:"Prediction"`
	Confidence string `json:"Confidence"`
}

type askResponse struct {
	Answer string `json:"Answer"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func New(cfg *config.ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Ask posts question and returns the answer text.
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	endpoint := c.baseURL + "/ask-question?" + url.Values{"question": {question}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", models.Wrap(models.ErrConfig, "build ask request", err)
	}
	var out askResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	return out.Answer, nil
}

// PredictFile uploads the image at path.
func (c *Client) PredictFile(ctx context.Context, path string) (*PredictResponse, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return c.Predict(ctx, filepath.Base(path), data)
}

// Predict uploads image bytes as the multipart field "file".
func (c *Client) Predict(ctx context.Context, filename string, image []byte) (*PredictResponse, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict-image", &body)
	if err != nil {
		return nil, models.Wrap(models.ErrConfig, "build predict request", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out PredictResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return models.Wrap(models.ErrService, "call api", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Wrap(models.ErrService, "read api response", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		kind := models.ErrService
		if resp.StatusCode == http.StatusBadRequest {
			kind = models.ErrValidation
		}
		return models.Errorf(kind, "api returned %d: %s", resp.StatusCode, msg)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return models.Wrap(models.ErrService, "decode api response", err)
	}
	return nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, models.Wrap(models.ErrNotFound, "image "+path, err)
	}
	if err != nil {
		return nil, models.Wrap(models.ErrIO, "read image "+path, err)
	}
	return data, nil
}
