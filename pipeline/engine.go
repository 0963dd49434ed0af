package pipeline

import (
	"context"
	"time"

	"github.com/nadimsalem/ei-go/model"
	"github.com/nadimsalem/ei-go/service/lgr"
)

// drive is the inference engine driver. It consumes the input queue, submits
// each batch to the engine and pushes (originals, outputs) pairs onto the
// bounded output queue in strict submission order, which is what keeps frame
// k's detections on frame k's pixels. On the sentinel it forwards its own
// sentinel downstream exactly once and returns.
func drive(canxCtx context.Context,
	svcs ServicesFactory,
	sessionID string,
	inputQueue <-chan item[FrameBatch],
	outputQueue chan<- item[ResultBatch],
	errorStream chan interface{},
	statsStream chan interface{}) {

	var batches, errors = 0, 0
	var startTime = time.Now().Unix()
	var totalInferTime time.Duration

	defer func() {
		var avgInferTime float64
		if batches > 0 {
			avgInferTime = totalInferTime.Seconds() / float64(batches)
		}
		emit(canxCtx, statsStream, model.EngineStats{
			Session:      sessionID,
			Batches:      batches,
			Errors:       errors,
			Uptime:       time.Now().Unix() - startTime,
			AvgInferTime: avgInferTime,
		})
	}()

	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info("engine driver context cancelled")
			return

		case it := <-inputQueue:
			if it.eos {
				select {
				case <-canxCtx.Done():
				case outputQueue <- item[ResultBatch]{eos: true}:
				}
				return
			}

			startInfer := time.Now()
			outputs, err := svcs.EngineSvc.Infer(it.val.Preprocessed)
			totalInferTime += time.Since(startInfer)
			closeMats(it.val.Preprocessed)

			if err != nil {
				// A failed submission drops this batch and moves on; it
				// never halts the pipeline.
				errors++
				emit(canxCtx, errorStream, model.GenError("engine_driver",
					err,
					map[string]interface{}{"batch": batches + errors},
					"error submitting batch to engine"))
				closeMats(it.val.Originals)
				continue
			}
			batches++

			select {
			case <-canxCtx.Done():
				lgr.Logger.Info("engine driver context cancelled while sending")
				closeMats(it.val.Originals)
				return
			case outputQueue <- item[ResultBatch]{val: ResultBatch{
				Originals: it.val.Originals,
				Outputs:   outputs,
			}}:
			}
		}
	}
}
