package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"mammo-rag/internal/config"
	"mammo-rag/internal/models"
)

// TFServing calls a TensorFlow Serving REST predict endpoint hosting the
// trained Keras model.
type TFServing struct {
	endpoint string
	client   *http.Client
}

type predictRequest struct {
	Instances [][][][]float32 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error"`
}

func NewTFServing(cfg *config.TFServingConfig) (*TFServing, error) {
	if cfg.URL == "" || cfg.Model == "" {
		return nil, models.Errorf(models.ErrConfig, "classifier.tfserving url and model are required")
	}
	return &TFServing{
		endpoint: fmt.Sprintf("%s/v1/models/%s:predict", strings.TrimRight(cfg.URL, "/"), cfg.Model),
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (s *TFServing) Predict(ctx context.Context, input *Tensor) (float64, error) {
	body, err := json.Marshal(predictRequest{Instances: input.Nested()})
	if err != nil {
		return 0, fmt.Errorf("failed to encode predict request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, models.Wrap(models.ErrConfig, "build predict request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, models.Wrap(models.ErrService, "call model server", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, models.Wrap(models.ErrService, "read model server response", err)
	}
	var out predictResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, models.Wrap(models.ErrService, fmt.Sprintf("decode model server response (status %d)", resp.StatusCode), err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, models.Errorf(models.ErrService, "model server returned %d: %s", resp.StatusCode, out.Error)
	}
	if len(out.Predictions) == 0 || len(out.Predictions[0]) == 0 {
		return 0, models.Errorf(models.ErrService, "model server returned no predictions")
	}
	return out.Predictions[0][0], nil
}
