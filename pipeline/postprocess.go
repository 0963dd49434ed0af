package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nadimsalem/ei-go/model"
	"github.com/nadimsalem/ei-go/service/lgr"
	"github.com/natefinch/lumberjack"
	"gocv.io/x/gocv"
)

var detectionLogger = &lumberjack.Logger{
	Filename:   "detections.log",
	MaxSize:    10, // MB
	MaxBackups: 5,
	MaxAge:     7,    // days
	Compress:   true, // compress old logs
}

// consume drains the output queue until the sentinel arrives: per batch it
// computes instantaneous FPS, decodes and draws detections per frame, then
// routes each finished frame to the single active sink. Returns true when
// the user asked to quit from the display window.
func consume(canxCtx context.Context,
	svcs ServicesFactory,
	sessionID string,
	sink string,
	opts Options,
	outputQueue <-chan item[ResultBatch],
	errorStream chan interface{},
	statsStream chan interface{}) bool {

	var frames, errors = 0, 0
	var startTime = time.Now().Unix()
	var lastFPS float64

	defer func() {
		emit(canxCtx, statsStream, model.ConsumerStats{
			Session: sessionID,
			Sink:    sink,
			Frames:  frames,
			Errors:  errors,
			FPS:     int(lastFPS),
			Uptime:  time.Now().Unix() - startTime,
		})
	}()

	var sender *RelaySender
	var window *gocv.Window

	switch sink {
	case SinkRelay:
		var err error
		sender, err = NewRelaySender(opts.RelayAddr, svcs.CfgSvc)
		if err != nil {
			// Live view is best effort; fall back to disk so the run still
			// produces output.
			emit(canxCtx, errorStream, model.GenError("consumer",
				err,
				map[string]interface{}{"address": opts.RelayAddr},
				"error opening relay sender, falling back to disk"))
			sink = SinkDisk
		} else {
			defer sender.Close()
		}
	case SinkWindow:
		window = gocv.NewWindow("Output")
		defer window.Close()
	}

	if sink == SinkDisk {
		if err := os.MkdirAll(svcs.CfgSvc.GetOutputFolder(), 0755); err != nil {
			emit(canxCtx, errorStream, model.GenError("consumer",
				err,
				map[string]interface{}{},
				"error creating output folder"))
			// Reporting quit makes the session cancel, which unblocks the
			// upstream stages parked on the now never-drained queues.
			return true
		}
	}

	imageID := 0
	var prevTime time.Time
	quit := false

	for !quit {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info("consumer context cancelled")
			return false

		case it := <-outputQueue:
			if it.eos {
				return false
			}
			r := it.val

			// First sample has no meaningful wall-clock delta; skip it.
			var fps float64
			now := time.Now()
			if !prevTime.IsZero() {
				fps = 1 / now.Sub(prevTime).Seconds()
				lastFPS = fps
			}
			prevTime = now

			if len(r.Outputs) != len(r.Originals) {
				errors++
				emit(canxCtx, errorStream, model.GenError("consumer",
					fmt.Errorf("batch of %d frames carries %d outputs", len(r.Originals), len(r.Outputs)),
					map[string]interface{}{},
					"frame/output count mismatch, dropping batch"))
				closeMats(r.Originals)
				continue
			}

			for i := range r.Originals {
				frame := r.Originals[i]

				detections := svcs.DetectSvc.Decode(r.Outputs[i], frame.Cols(), frame.Rows())
				svcs.DetectSvc.Annotate(&frame, detections, fps)
				logDetections(sessionID, detections)
				frames++

				switch sink {
				case SinkRelay:
					if err := sender.Send(frame); err != nil {
						errors++
						lgr.Logger.Warn(
							"relay send failed, dropping frame",
							slog.Any("error", err),
						)
					}

				case SinkDisk:
					fn := filepath.Join(svcs.CfgSvc.GetOutputFolder(), fmt.Sprintf("output_%d.png", imageID))
					if ok := gocv.IMWrite(fn, frame); !ok {
						errors++
						emit(canxCtx, errorStream, model.GenError("consumer",
							fmt.Errorf("imwrite returned false"),
							map[string]interface{}{"file": fn},
							"error writing output frame"))
					}
					imageID++

				case SinkWindow:
					window.IMShow(frame)
					if key := window.WaitKey(1); key == 'q' {
						lgr.Logger.Info("quit requested from display window")
						quit = true
					}
				}

				frame.Close()
				if quit {
					closeMats(r.Originals[i+1:])
					break
				}
			}
		}
	}

	return true
}

func logDetections(sessionID string, detections []model.Detection) {
	if len(detections) == 0 {
		return
	}

	entry := map[string]interface{}{
		"time":       time.Now().Format(time.RFC3339),
		"session":    sessionID,
		"detections": detections,
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		lgr.Logger.Warn("error marshaling detections", slog.Any("error", err))
		return
	}

	if _, err := detectionLogger.Write(append(jsonData, '\n')); err != nil {
		lgr.Logger.Warn("error writing to detection log", slog.Any("error", err))
	}
}
