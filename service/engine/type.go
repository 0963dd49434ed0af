package engine

import (
	"github.com/nadimsalem/ei-go/model"
	"gocv.io/x/gocv"
)

// IService abstracts the inference accelerator. The pipeline queries the
// input shape once at startup, then submits preprocessed batches from a
// single driver goroutine. Implementations own at most one accelerator
// context and are not required to be safe for concurrent Infer calls.
//
// Infer returns one slice of output tensors per input frame, in input order.
type IService interface {
	InputShape() model.Shape
	Infer(batch []gocv.Mat) ([][]model.Tensor, error)
	Close() error
}
