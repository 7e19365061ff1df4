package classifier

import (
	"context"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"mammo-rag/internal/config"
	"mammo-rag/internal/models"
)

var ortInit sync.Once

// ONNX runs an exported copy of the network in-process through ONNX Runtime.
type ONNX struct {
	session *ort.DynamicAdvancedSession
	size    int
}

func NewONNX(cfg *config.ONNXConfig, size int) (*ONNX, error) {
	if cfg.ModelPath == "" {
		return nil, models.Errorf(models.ErrConfig, "classifier.onnx.model_path is required")
	}
	if size <= 0 {
		size = DefaultImageSize
	}

	var initErr error
	ortInit.Do(func() {
		if cfg.LibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.LibraryPath)
		}
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return nil, models.Wrap(models.ErrConfig, "initialize onnxruntime", initErr)
	}
	if !ort.IsInitialized() {
		return nil, models.Errorf(models.ErrConfig, "onnxruntime is not initialized")
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName}, nil)
	if err != nil {
		return nil, models.Wrap(models.ErrConfig, "load onnx model "+cfg.ModelPath, err)
	}
	return &ONNX{session: session, size: size}, nil
}

func (o *ONNX) Predict(ctx context.Context, input *Tensor) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	in, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return 0, models.Wrap(models.ErrService, "create input tensor", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, models.Wrap(models.ErrService, "create output tensor", err)
	}
	defer out.Destroy()

	if err := o.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return 0, models.Wrap(models.ErrService, "run onnx model", err)
	}
	data := out.GetData()
	if len(data) == 0 {
		return 0, models.Errorf(models.ErrService, "onnx model returned no output")
	}
	return float64(data[0]), nil
}

func (o *ONNX) Close() error {
	return o.session.Destroy()
}
