package engine

import (
	"github.com/nadimsalem/ei-go/model"
	"gocv.io/x/gocv"
)

type fakeService struct {
	shape   model.Shape
	inferFn func(batch []gocv.Mat) ([][]model.Tensor, error)
}

// NewFake returns an engine that emits one empty detection tensor per frame.
// Used by tests and for dry runs without a model artifact.
func NewFake(shape model.Shape) IService {
	return &fakeService{shape: shape}
}

// NewFakeWithFn returns an engine whose Infer is delegated to fn. Tests use
// this to echo frame tags through the pipeline.
func NewFakeWithFn(shape model.Shape, fn func(batch []gocv.Mat) ([][]model.Tensor, error)) IService {
	return &fakeService{shape: shape, inferFn: fn}
}

func (svc *fakeService) InputShape() model.Shape {
	return svc.shape
}

func (svc *fakeService) Infer(batch []gocv.Mat) ([][]model.Tensor, error) {
	if svc.inferFn != nil {
		return svc.inferFn(batch)
	}

	outputs := make([][]model.Tensor, len(batch))
	for i := range batch {
		outputs[i] = []model.Tensor{{Data: []float32{}, Dims: []int{0, 6}}}
	}
	return outputs, nil
}

func (svc *fakeService) Close() error {
	return nil
}
