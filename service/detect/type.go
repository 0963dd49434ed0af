package detect

import (
	"github.com/nadimsalem/ei-go/model"
	"gocv.io/x/gocv"
)

// IService is the model-specific decode/visualization utility consumed by the
// pipeline. Preprocess converts a raw BGR frame into the engine's input
// layout; Decode turns raw output tensors back into detections on the
// original frame; Annotate draws boxes, labels and the FPS counter.
type IService interface {
	Labels() []string
	Preprocess(src gocv.Mat, width, height int) (gocv.Mat, error)
	Decode(outputs []model.Tensor, frameWidth, frameHeight int) []model.Detection
	Annotate(frame *gocv.Mat, detections []model.Detection, fps float64)
}
