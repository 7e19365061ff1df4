package classifier

import (
	"context"
	"math"

	"github.com/rs/zerolog/log"

	"mammo-rag/internal/config"
	"mammo-rag/internal/models"
)

// Network returns the malignancy probability for a preprocessed image.
type Network interface {
	Predict(ctx context.Context, input *Tensor) (float64, error)
}

type Classifier struct {
	network   Network
	threshold float64
	size      int
	maxPixels int
}

func New(network Network, threshold float64, size int) *Classifier {
	if size <= 0 {
		size = DefaultImageSize
	}
	return &Classifier{network: network, threshold: threshold, size: size, maxPixels: DefaultMaxPixels}
}

// WithMaxPixels caps the decoded size of uploads; n <= 0 keeps the default.
func (c *Classifier) WithMaxPixels(n int) *Classifier {
	if n > 0 {
		c.maxPixels = n
	}
	return c
}

// NewFromConfig builds the configured network backend.
func NewFromConfig(cfg *config.ClassifierConfig) (*Classifier, error) {
	var (
		network Network
		err     error
	)
	switch cfg.Network {
	case config.NetworkTFServing, "":
		network, err = NewTFServing(&cfg.TFServing)
	case config.NetworkONNX:
		network, err = NewONNX(&cfg.ONNX, cfg.ImageSize)
	default:
		err = models.Errorf(models.ErrConfig, "unknown classifier network %q", cfg.Network)
	}
	if err != nil {
		return nil, err
	}
	log.Info().Str("network", cfg.Network).Float64("threshold", cfg.Threshold).Msg("Classifier ready")
	return New(network, cfg.Threshold, cfg.ImageSize).WithMaxPixels(cfg.MaxPixels), nil
}

// Classify runs the full image pipeline on raw upload bytes.
func (c *Classifier) Classify(ctx context.Context, raw []byte) (*models.Prediction, error) {
	input, err := Preprocess(raw, c.size, c.maxPixels)
	if err != nil {
		return nil, err
	}
	p, err := c.network.Predict(ctx, input)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return nil, models.Errorf(models.ErrService, "network returned probability %v outside [0,1]", p)
	}
	pred := Decide(p, c.threshold)
	log.Debug().Float64("probability", p).Str("label", pred.Label).Msg("Image classified")
	return &pred, nil
}

// Decide labels probability p in [0,1]: malignant iff p >= threshold.
// Confidence is the probability of the chosen label as a percentage.
func Decide(p, threshold float64) models.Prediction {
	pred := models.Prediction{Label: models.LabelBenign, Probability: p}
	if p >= threshold {
		pred.Label = models.LabelMalignant
		pred.Confidence = p * 100
	} else {
		pred.Confidence = (1 - p) * 100
	}
	pred.Confidence = clamp(pred.Confidence, 0, 100)
	return pred
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Close releases backend resources when the network holds any.
func (c *Classifier) Close() error {
	if closer, ok := c.network.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
