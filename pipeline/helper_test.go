package pipeline

import (
	"gocv.io/x/gocv"

	"github.com/nadimsalem/ei-go/model"
)

// sliceSource plays back a fixed set of in-memory frames.
type sliceSource struct {
	mats  []gocv.Mat
	index int
}

func (s *sliceSource) Next() (gocv.Mat, bool) {
	if s.index >= len(s.mats) {
		return gocv.Mat{}, false
	}
	img := s.mats[s.index]
	s.index++
	return img, true
}

func (s *sliceSource) Streaming() bool {
	return false
}

func (s *sliceSource) Count() int {
	return len(s.mats)
}

func (s *sliceSource) Close() {
}

// stubDetect is a pass-through detection service. Preprocess clones the frame
// so that the frame tag written by taggedMat survives into the engine.
type stubDetect struct {
	decodeFn   func(outputs []model.Tensor, frameWidth, frameHeight int) []model.Detection
	annotateFn func(frame *gocv.Mat, detections []model.Detection, fps float64)
}

func (s *stubDetect) Labels() []string {
	return []string{"thing"}
}

func (s *stubDetect) Preprocess(src gocv.Mat, width, height int) (gocv.Mat, error) {
	return src.Clone(), nil
}

func (s *stubDetect) Decode(outputs []model.Tensor, frameWidth, frameHeight int) []model.Detection {
	if s.decodeFn != nil {
		return s.decodeFn(outputs, frameWidth, frameHeight)
	}
	return nil
}

func (s *stubDetect) Annotate(frame *gocv.Mat, detections []model.Detection, fps float64) {
	if s.annotateFn != nil {
		s.annotateFn(frame, detections, fps)
	}
}

// taggedMat builds a small solid-color frame whose pixel value identifies it
// through clone, encode and batch boundaries.
func taggedMat(tag uint8) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(tag), float64(tag), float64(tag), 0),
		8, 8, gocv.MatTypeCV8UC3)
}

func taggedMats(n int) []gocv.Mat {
	mats := make([]gocv.Mat, n)
	for i := range mats {
		mats[i] = taggedMat(uint8(i + 1))
	}
	return mats
}

func matTag(m gocv.Mat) uint8 {
	return m.GetUCharAt(0, 0)
}

func testStreams() (chan interface{}, chan interface{}) {
	return make(chan interface{}, 64), make(chan interface{}, 64)
}
