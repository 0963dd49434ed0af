package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nadimsalem/ei-go/service/config"
	"github.com/nadimsalem/ei-go/service/lgr"
	"gocv.io/x/gocv"
)

// ErrSourceUnavailable marks a device or file that could not be opened.
// Fatal at startup; no pipeline goroutine is started when it fires.
var ErrSourceUnavailable = errors.New("source unavailable")

var videoExtensions = map[string]bool{
	".mp4": true,
	".avi": true,
	".mov": true,
	".mkv": true,
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

// FrameSource produces an ordered sequence of raw BGR frames. Exhaustion is
// a normal terminal condition, not an error; a dropped camera or video
// device also reads as exhaustion.
type FrameSource interface {
	Next() (gocv.Mat, bool)
	// Streaming reports whether frames arrive in real time (camera or
	// video) as opposed to a finite image set.
	Streaming() bool
	Close()
}

// OpenSource resolves the input argument: the literal "camera", a video file by
// extension, or an image file/folder.
func OpenSource(input string, cfgSvc config.IService) (FrameSource, error) {
	if input == "camera" {
		cap, err := gocv.VideoCaptureDevice(0)
		if err != nil {
			return nil, fmt.Errorf("%w: error opening camera: %v", ErrSourceUnavailable, err)
		}
		cap.Set(gocv.VideoCaptureFrameWidth, float64(cfgSvc.GetCameraCaptureWidth()))
		cap.Set(gocv.VideoCaptureFrameHeight, float64(cfgSvc.GetCameraCaptureHeight()))
		return &captureSource{name: "camera", cap: cap}, nil
	}

	if videoExtensions[strings.ToLower(filepath.Ext(input))] {
		cap, err := gocv.VideoCaptureFile(input)
		if err != nil {
			return nil, fmt.Errorf("%w: error opening video %s: %v", ErrSourceUnavailable, input, err)
		}
		return &captureSource{name: input, cap: cap}, nil
	}

	paths, err := imagePaths(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return &imageSource{paths: paths}, nil
}

type captureSource struct {
	name string
	cap  *gocv.VideoCapture
}

func (s *captureSource) Next() (gocv.Mat, bool) {
	img := gocv.NewMat()
	if ok := s.cap.Read(&img); !ok || img.Empty() {
		// A failed read is either end of file or a dropped device; both
		// terminate the stream normally.
		img.Close()
		return gocv.Mat{}, false
	}
	return img, true
}

func (s *captureSource) Streaming() bool {
	return true
}

func (s *captureSource) Close() {
	s.cap.Close()
}

type imageSource struct {
	paths []string
	index int
}

func (s *imageSource) Next() (gocv.Mat, bool) {
	for s.index < len(s.paths) {
		path := s.paths[s.index]
		s.index++

		img := gocv.IMRead(path, gocv.IMReadColor)
		if img.Empty() {
			lgr.Logger.Warn(
				"skipping unreadable image",
				slog.String("path", path),
			)
			img.Close()
			continue
		}
		return img, true
	}
	return gocv.Mat{}, false
}

func (s *imageSource) Streaming() bool {
	return false
}

// Count reports how many image paths the source will attempt to read.
func (s *imageSource) Count() int {
	return len(s.paths)
}

func (s *imageSource) Close() {
}

func imagePaths(input string) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("error opening input %s: %v", input, err)
	}

	if !info.IsDir() {
		return []string{input}, nil
	}

	entries, err := os.ReadDir(input)
	if err != nil {
		return nil, fmt.Errorf("error reading input folder %s: %v", input, err)
	}

	paths := []string{}
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(input, e.Name()))
	}
	sort.Strings(paths)

	return paths, nil
}
