package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nadimsalem/ei-go/model"
	"github.com/nadimsalem/ei-go/service/lgr"
)

// Run executes one inference session: it opens the frame source, wires the
// two bounded queues, starts the three stage goroutines and joins them when
// the stream drains, the user quits, or the context is cancelled. Every
// interrupt path either delivers the sentinel or cancels the session
// context, so the join is always bounded.
func Run(canxCtx context.Context,
	svcs ServicesFactory,
	opts Options,
	errorStream chan interface{},
	statsStream chan interface{}) error {

	if opts.BatchSize < 1 {
		return fmt.Errorf("batch size must be a positive integer, got %d", opts.BatchSize)
	}

	sessionID := uuid.NewString()

	src, err := OpenSource(opts.Input, svcs.CfgSvc)
	if err != nil {
		return fmt.Errorf("error opening source: %w", err)
	}

	sink := chooseSink(opts, src.Streaming())

	lgr.Logger.Info(
		"inference session starting....",
		slog.String("sessionID", sessionID),
		slog.String("net", opts.Net),
		slog.String("input", opts.Input),
		slog.Int("batchSize", opts.BatchSize),
		slog.String("sink", sink),
	)

	if err := svcs.DataSvc.NewRun(model.Run{
		ID:        sessionID,
		Net:       opts.Net,
		Input:     opts.Input,
		Labels:    opts.LabelsPath,
		BatchSize: opts.BatchSize,
		Sink:      sink,
		Status:    model.RunStatusRunning,
		StartTime: time.Now().Unix(),
	}); err != nil {
		lgr.Logger.Warn("error recording run", slog.Any("error", err))
	}

	// A finite source with nothing to read is a validation error: logged,
	// recorded, and recovered without starting the pipeline.
	if counted, ok := src.(interface{ Count() int }); ok {
		n := counted.Count()
		if n == 0 {
			lgr.Logger.Error(
				"no valid images found for input",
				slog.String("input", opts.Input),
			)
			markRun(svcs, sessionID, model.RunStatusInvalid)
			src.Close()
			return nil
		}
		if n%opts.BatchSize != 0 {
			lgr.Logger.Warn(
				"image count not divisible by batch size; trailing frames will be dropped",
				slog.Int("images", n),
				slog.Int("batchSize", opts.BatchSize),
				slog.Int("dropped", n%opts.BatchSize),
			)
		}
	}

	// Input shape is queried once and parametrizes preprocessing.
	shape := svcs.EngineSvc.InputShape()

	sessionCtx, sessionCanx := context.WithCancel(canxCtx)
	defer sessionCanx()

	inputQueue := make(chan item[FrameBatch], svcs.CfgSvc.GetInputQueueCapacity())
	outputQueue := make(chan item[ResultBatch], svcs.CfgSvc.GetOutputQueueCapacity())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		preprocess(sessionCtx, svcs, sessionID, src, opts.BatchSize, shape, inputQueue, errorStream, statsStream)
	}()
	go func() {
		defer wg.Done()
		drive(sessionCtx, svcs, sessionID, inputQueue, outputQueue, errorStream, statsStream)
	}()

	consumerDone := make(chan bool, 1)
	go func() {
		consumerDone <- consume(sessionCtx, svcs, sessionID, sink, opts, outputQueue, errorStream, statsStream)
	}()

	startTime := time.Now().Unix()
	status := model.RunStatusCompleted

	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info("inference session context cancelled")
			status = model.RunStatusCancelled
			sessionCanx()
			<-consumerDone
			goto resume

		case quit := <-consumerDone:
			if quit {
				// Remaining queued results are abandoned; cancelling the
				// session context unblocks any stage parked on a queue.
				status = model.RunStatusCancelled
				sessionCanx()
			}
			goto resume

		case <-time.After(time.Duration(svcs.CfgSvc.GetSessionPeriodicTimeout()) * time.Second):
			emit(sessionCtx, statsStream, model.SessionStats{
				ID:     sessionID,
				Input:  opts.Input,
				Uptime: time.Now().Unix() - startTime,
			})
		}
	}

resume:
	wg.Wait()
	src.Close()
	markRun(svcs, sessionID, status)

	if status == model.RunStatusCompleted {
		lgr.Logger.Info(
			"inference session was successful",
			slog.String("sessionID", sessionID),
		)
	}
	return nil
}

func markRun(svcs ServicesFactory, sessionID, status string) {
	if err := svcs.DataSvc.UpdateRunStatus(sessionID, status); err != nil {
		lgr.Logger.Warn("error updating run status", slog.Any("error", err))
	}
}
