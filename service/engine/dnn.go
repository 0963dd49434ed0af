package engine

import (
	"fmt"
	"image"

	"github.com/nadimsalem/ei-go/model"
	"gocv.io/x/gocv"
)

type dnnService struct {
	net   gocv.Net
	shape model.Shape
}

// NewDNN loads a model through the OpenCV DNN backend. The returned service
// owns the single network context; Infer must only be called from one
// goroutine (the pipeline's engine driver).
func NewDNN(modelPath string, shape model.Shape) (IService, error) {
	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("error reading model %s", modelPath)
	}

	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("error setting backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("error setting target: %w", err)
	}

	return &dnnService{net: net, shape: shape}, nil
}

func (svc *dnnService) InputShape() model.Shape {
	return svc.shape
}

func (svc *dnnService) Infer(batch []gocv.Mat) ([][]model.Tensor, error) {
	outputs := make([][]model.Tensor, 0, len(batch))

	for _, m := range batch {
		if m.Empty() {
			return nil, fmt.Errorf("empty preprocessed frame in batch")
		}

		// Frames arrive already letterboxed to the input shape and in RGB,
		// so the blob conversion neither resizes nor swaps channels.
		blob := gocv.BlobFromImage(m, 1.0/255.0,
			image.Pt(svc.shape.Width, svc.shape.Height),
			gocv.NewScalar(0, 0, 0, 0), false, false)

		svc.net.SetInput(blob, "")
		out := svc.net.Forward("")
		blob.Close()

		dims := out.Size()
		data, err := out.DataPtrFloat32()
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("error reading output tensor: %w", err)
		}

		// The forward output is backed by native memory owned by the net;
		// copy it before releasing the Mat.
		copied := make([]float32, len(data))
		copy(copied, data)
		out.Close()

		outputs = append(outputs, []model.Tensor{{Data: copied, Dims: append([]int{}, dims...)}})
	}

	return outputs, nil
}

func (svc *dnnService) Close() error {
	return svc.net.Close()
}
