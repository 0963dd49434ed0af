package mode

import (
	"context"
	"log/slog"
	"time"

	"github.com/nadimsalem/ei-go/pipeline"
	"github.com/nadimsalem/ei-go/service/lgr"
)

// Detect runs one inference pipeline session and owns its stats/error
// streams until the session drains or the context is cancelled.
func Detect(canxCtx context.Context, svcs pipeline.ServicesFactory, opts pipeline.Options) error {
	errorStream := make(chan interface{})
	statsStream := make(chan interface{})

	runResult := make(chan error, 1)
	go func() {
		runResult <- pipeline.Run(canxCtx, svcs, opts, errorStream, statsStream)
	}()

	var runErr error

	// Wait for cancellation, session completion, stats or errors
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"detect mode context cancelled",
			)
			goto resume

		case err := <-runResult:
			runErr = err
			goto resume

		case s := <-statsStream:
			procStats(svcs.DataSvc, s)

		case e := <-errorStream:
			procError(svcs.DataSvc, e)
		}
	}

	// Wait in a non-blocking way for the shutdown window so exiting
	// goroutines can still report stats and errors
resume:
	timer := time.NewTimer(time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime()) * time.Second)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			lgr.Logger.Info(
				"detect mode shutdown waiting period expired. Exiting now",
				slog.Duration("period", time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime())*time.Second),
			)
			return runErr

		case err := <-runResult:
			if err != nil {
				runErr = err
			}

		case s := <-statsStream:
			procStats(svcs.DataSvc, s)

		case e := <-errorStream:
			procError(svcs.DataSvc, e)
		}
	}
}
