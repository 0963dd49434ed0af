package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nadimsalem/ei-go/model"
	"github.com/nadimsalem/ei-go/service/lgr"
	"gocv.io/x/gocv"
)

// preprocess pulls frames from the source, groups them into fixed-size
// batches, converts each frame to the engine's input layout and pushes
// (originals, preprocessed) pairs onto the bounded input queue. Backpressure
// from a slow engine is absorbed by blocking on the queue send, never by
// allocating. The sentinel is pushed exactly once after exhaustion.
func preprocess(canxCtx context.Context,
	svcs ServicesFactory,
	sessionID string,
	src FrameSource,
	batchSize int,
	shape model.Shape,
	inputQueue chan<- item[FrameBatch],
	errorStream chan interface{},
	statsStream chan interface{}) {

	var frames, batches, dropped, errors = 0, 0, 0, 0
	var startTime = time.Now().Unix()

	defer func() {
		emit(canxCtx, statsStream, model.PreprocessStats{
			Session: sessionID,
			Frames:  frames,
			Batches: batches,
			Dropped: dropped,
			Errors:  errors,
			Uptime:  time.Now().Unix() - startTime,
		})
	}()

	originals := make([]gocv.Mat, 0, batchSize)
	preprocessed := make([]gocv.Mat, 0, batchSize)

	abandon := func() {
		closeMats(originals)
		closeMats(preprocessed)
	}

	for {
		if canxCtx.Err() != nil {
			lgr.Logger.Info("preprocessor context cancelled")
			abandon()
			return
		}

		img, ok := src.Next()
		if !ok {
			break
		}
		frames++

		prep, err := svcs.DetectSvc.Preprocess(img, shape.Width, shape.Height)
		if err != nil {
			errors++
			emit(canxCtx, errorStream, model.GenError("preprocessor",
				err,
				map[string]interface{}{"frame": frames},
				"error preprocessing frame"))
			img.Close()
			continue
		}

		originals = append(originals, img)
		preprocessed = append(preprocessed, prep)
		if len(originals) < batchSize {
			continue
		}

		batch := FrameBatch{Originals: originals, Preprocessed: preprocessed}
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info("preprocessor context cancelled while sending")
			abandon()
			return
		case inputQueue <- item[FrameBatch]{val: batch}:
			batches++
		}
		originals = make([]gocv.Mat, 0, batchSize)
		preprocessed = make([]gocv.Mat, 0, batchSize)
	}

	// A trailing short batch is dropped, not submitted, to keep the batch
	// shape uniform for the accelerator. Callers that need every frame
	// processed choose batchSize 1 or pad the input themselves.
	if len(originals) > 0 {
		dropped = len(originals)
		lgr.Logger.Warn(
			"dropping trailing short batch",
			slog.Int("frames", dropped),
			slog.Int("batchSize", batchSize),
		)
		abandon()
	}

	select {
	case <-canxCtx.Done():
	case inputQueue <- item[FrameBatch]{eos: true}:
	}
}
