package detect

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"sort"
	"strings"

	"github.com/chewxy/math32"
	"github.com/nadimsalem/ei-go/model"
	"github.com/nadimsalem/ei-go/service/config"
	"gocv.io/x/gocv"
)

const letterboxFill = 114

type yoloService struct {
	labels        []string
	inputWidth    int
	inputHeight   int
	confThreshold float32
	nmsThreshold  float32
}

// NewYolo builds a decode utility for YOLO-family outputs, i.e. rows of
// (cx, cy, w, h, objectness, class scores...) in input-pixel coordinates.
func NewYolo(labelsPath string, cfgSvc config.IService) (IService, error) {
	data, err := os.ReadFile(labelsPath)
	if err != nil {
		return nil, fmt.Errorf("error reading labels file: %w", err)
	}

	labels := strings.Split(strings.TrimSpace(strings.ReplaceAll(string(data), "\r\n", "\n")), "\n")
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file %s is empty", labelsPath)
	}

	inputHeight, inputWidth, _ := cfgSvc.GetModelInputShape()

	return &yoloService{
		labels:        labels,
		inputWidth:    inputWidth,
		inputHeight:   inputHeight,
		confThreshold: cfgSvc.GetConfidenceThreshold(),
		nmsThreshold:  cfgSvc.GetNMSThreshold(),
	}, nil
}

func (svc *yoloService) Labels() []string {
	return svc.labels
}

// letterboxParams returns the scale and padding used to fit a srcW x srcH
// frame into dstW x dstH while preserving aspect ratio.
func letterboxParams(srcW, srcH, dstW, dstH int) (scale float32, padX, padY int) {
	scale = math32.Min(float32(dstW)/float32(srcW), float32(dstH)/float32(srcH))
	newW := int(math32.Round(float32(srcW) * scale))
	newH := int(math32.Round(float32(srcH) * scale))
	return scale, (dstW - newW) / 2, (dstH - newH) / 2
}

func (svc *yoloService) Preprocess(src gocv.Mat, width, height int) (gocv.Mat, error) {
	if src.Empty() {
		return gocv.Mat{}, fmt.Errorf("empty frame")
	}

	rgb := gocv.NewMat()
	gocv.CvtColor(src, &rgb, gocv.ColorBGRToRGB)

	scale, padX, padY := letterboxParams(src.Cols(), src.Rows(), width, height)
	newW := int(math32.Round(float32(src.Cols()) * scale))
	newH := int(math32.Round(float32(src.Rows()) * scale))

	resized := gocv.NewMat()
	gocv.Resize(rgb, &resized, image.Pt(newW, newH), 0, 0, gocv.InterpolationLinear)
	rgb.Close()

	dst := gocv.NewMat()
	gocv.CopyMakeBorder(resized, &dst, padY, height-newH-padY, padX, width-newW-padX,
		gocv.BorderConstant, color.RGBA{letterboxFill, letterboxFill, letterboxFill, 0})
	resized.Close()

	return dst, nil
}

func (svc *yoloService) Decode(outputs []model.Tensor, frameWidth, frameHeight int) []model.Detection {
	detections := []model.Detection{}

	for _, t := range outputs {
		detections = append(detections, svc.decodeTensor(t.Squeeze(), frameWidth, frameHeight)...)
	}

	return nonMaxSuppression(detections, svc.nmsThreshold)
}

func (svc *yoloService) decodeTensor(t model.Tensor, frameWidth, frameHeight int) []model.Detection {
	if len(t.Dims) != 2 {
		return nil
	}

	rows, cols := t.Dims[0], t.Dims[1]
	if cols < 5 || rows*cols > len(t.Data) {
		return nil
	}

	// Boxes live in the letterboxed input plane; undo the same scale/pad the
	// preprocessor applied to map them back onto the original frame.
	scale, padX, padY := letterboxParams(frameWidth, frameHeight, svc.inputWidth, svc.inputHeight)

	detections := []model.Detection{}
	for i := 0; i < rows; i++ {
		row := t.Data[i*cols : (i+1)*cols]

		objectConfidence := row[4]
		if objectConfidence < svc.confThreshold {
			continue
		}

		classID := -1
		classConfidence := float32(0)
		for j, score := range row[5:] {
			if j >= len(svc.labels) {
				break
			}
			if score > classConfidence {
				classConfidence = score
				classID = j
			}
		}

		finalConf := objectConfidence * classConfidence
		if classID == -1 || finalConf < svc.confThreshold {
			continue
		}

		cx := (row[0] - float32(padX)) / scale
		cy := (row[1] - float32(padY)) / scale
		w := row[2] / scale
		h := row[3] / scale
		x := int(cx - w/2)
		y := int(cy - h/2)
		rect := image.Rect(x, y, x+int(w), y+int(h)).
			Intersect(image.Rect(0, 0, frameWidth, frameHeight))

		detections = append(detections, model.Detection{
			ClassID:    classID,
			Label:      svc.labels[classID],
			Confidence: finalConf,
			Rect:       rect,
		})
	}

	return detections
}

func nonMaxSuppression(detections []model.Detection, threshold float32) []model.Detection {
	if len(detections) <= 1 {
		return detections
	}

	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	kept := []model.Detection{}
	for _, d := range detections {
		suppressed := false
		for _, k := range kept {
			if d.ClassID == k.ClassID && iou(d.Rect, k.Rect) > threshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}

	return kept
}

func iou(a, b image.Rectangle) float32 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}

	interArea := float32(inter.Dx() * inter.Dy())
	union := float32(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}

func (svc *yoloService) Annotate(frame *gocv.Mat, detections []model.Detection, fps float64) {
	green := color.RGBA{0, 255, 0, 0}

	for _, d := range detections {
		gocv.Rectangle(frame, d.Rect, green, 2)
		gocv.PutText(frame, fmt.Sprintf("%s %.2f", d.Label, d.Confidence),
			image.Pt(d.Rect.Min.X, d.Rect.Min.Y-5),
			gocv.FontHersheySimplex, 0.6, green, 2)
	}

	if fps > 0 {
		gocv.PutText(frame, fmt.Sprintf("FPS: %d", int(fps)),
			image.Pt(10, 30), gocv.FontHersheySimplex, 1, green, 2)
	}
}
