package mode

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/nadimsalem/ei-go/pipeline"
	"github.com/nadimsalem/ei-go/service/lgr"
)

// Serve is the viewer-side process: it receives relayed frames over UDP into
// the shared frame buffer and serves them as an MJPEG live feed. The feed
// renders at a fixed cadence independent of arrival rate; frames may be
// skipped, never queued.
func Serve(canxCtx context.Context, svcs pipeline.ServicesFactory, opts pipeline.Options) error {
	errorStream := make(chan interface{})
	statsStream := make(chan interface{})

	shared := &pipeline.SharedFrame{}
	receiver, err := pipeline.NewRelayReceiver(opts.RelayPort, shared, svcs.CfgSvc)
	if err != nil {
		return fmt.Errorf("error starting relay receiver: %w", err)
	}

	go receiver.Run(canxCtx, errorStream, statsStream)

	router := httprouter.New()
	router.GET("/video_feed", videoFeed(shared,
		time.Duration(svcs.CfgSvc.GetRenderInterval())*time.Millisecond))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.WebPort),
		Handler: router,
	}

	srvResult := make(chan error, 1)
	go func() {
		srvResult <- srv.ListenAndServe()
	}()

	lgr.Logger.Info(
		"live view serving....",
		slog.Int("relayPort", opts.RelayPort),
		slog.Int("webPort", opts.WebPort),
	)

	var srvErr error

	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"serve mode context cancelled",
			)
			goto resume

		case err := <-srvResult:
			if err != nil && err != http.ErrServerClosed {
				srvErr = err
			}
			goto resume

		case s := <-statsStream:
			procStats(svcs.DataSvc, s)

		case e := <-errorStream:
			procError(svcs.DataSvc, e)
		}
	}

resume:
	shutdownCtx, shutdownCanx := context.WithTimeout(context.Background(),
		time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime())*time.Second)
	defer shutdownCanx()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lgr.Logger.Warn("error shutting down live view server", slog.Any("error", err))
	}

	timer := time.NewTimer(time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime()) * time.Second)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			lgr.Logger.Info(
				"serve mode shutdown waiting period expired. Exiting now",
			)
			return srvErr

		case s := <-statsStream:
			procStats(svcs.DataSvc, s)

		case e := <-errorStream:
			procError(svcs.DataSvc, e)
		}
	}
}

// videoFeed streams the most recent relayed frame as multipart MJPEG. An
// empty buffer is tolerated indefinitely; the feed simply has nothing to
// show yet.
func videoFeed(shared *pipeline.SharedFrame, interval time.Duration) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
			}

			jpeg, ok := shared.Latest()
			if !ok {
				continue
			}

			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg)); err != nil {
				return
			}
			if _, err := w.Write(jpeg); err != nil {
				return
			}
			if _, err := fmt.Fprint(w, "\r\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
