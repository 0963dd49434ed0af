package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	"github.com/joho/godotenv"
	"golang.org/x/xerrors"

	"github.com/nadimsalem/ei-go/mode"
	"github.com/nadimsalem/ei-go/model"
	"github.com/nadimsalem/ei-go/pipeline"
	"github.com/nadimsalem/ei-go/service/config"
	"github.com/nadimsalem/ei-go/service/data"
	"github.com/nadimsalem/ei-go/service/detect"
	"github.com/nadimsalem/ei-go/service/engine"
	"github.com/nadimsalem/ei-go/service/lgr"
)

const (
	// WARNING: this has to be bigger than the mode processor shutdown time
	waitOnShutdown = 8 * time.Second
)

var modeProcessors = map[string]mode.Processor{
	"detect": mode.Detect,
	"serve":  mode.Serve,
}

func main() {
	rootCtx := context.Background()
	canxCtx, canxFn := context.WithCancel(rootCtx)

	// Hook up a signal handler to cancel the context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		lgr.Logger.Info(
			"received kill signal",
			slog.Any("signal", sig),
		)
		canxFn()
	}()

	// Load env vars if we are in DEV mode
	if os.Getenv("RUN_TIME_ENV") == "dev" {
		lgr.Logger.Info("loading env vars from .env file")
		err := godotenv.Load()
		if err != nil {
			lgr.Logger.Error("error loading .env file", slog.Any("error", xerrors.New(err.Error())))
			os.Exit(1)
		}
	}

	// Create the services needed for the mode processors. The config service
	// also supplies the flag defaults below.
	cfgSvc := config.NewEnv()
	dataSvc := data.NewFilesDB(cfgSvc)

	parser := argparse.NewParser("ei-go", "Streams frames through an inference accelerator and emits annotated results")

	detectCmd := parser.NewCommand("detect", "Run the inference pipeline")
	net := detectCmd.String("n", "net", &argparse.Options{
		Required: true,
		Help:     "Path to the model artifact",
	})
	input := detectCmd.String("i", "input", &argparse.Options{
		Help: "Path to an image, a folder of images, a video file, or the literal 'camera'",
	})
	labels := detectCmd.String("l", "labels", &argparse.Options{
		Required: true,
		Help:     "Path to a text file containing class labels",
	})
	batchSize := detectCmd.Int("b", "batch-size", &argparse.Options{
		Default: 1,
		Help:    "Number of frames in one batch",
	})
	saveStream := detectCmd.Flag("s", "save-stream", &argparse.Options{
		Help: "Persist stream output to disk instead of a display window",
	})
	relay := detectCmd.String("r", "relay", &argparse.Options{
		Default: cfgSvc.GetRelayAddress(),
		Help:    "Frame relay address as host:port; when set, annotated frames go to the relay instead of local output",
	})

	serveCmd := parser.NewCommand("serve", "Receive relayed frames and serve the live view")
	relayPort := serveCmd.Int("p", "port", &argparse.Options{
		Default: cfgSvc.GetRelayPort(),
		Help:    "UDP port to receive relayed frames on",
	})
	webPort := serveCmd.Int("w", "web", &argparse.Options{
		Default: cfgSvc.GetWebPort(),
		Help:    "HTTP port for the MJPEG live feed",
	})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	svcs := pipeline.ServicesFactory{
		CfgSvc:  cfgSvc,
		DataSvc: dataSvc,
	}
	opts := pipeline.Options{}

	modeType := "serve"
	if detectCmd.Happened() {
		modeType = "detect"

		if *input == "" {
			*input = cfgSvc.GetSampleInputFile()
		}

		// Missing required files fail fast, before any pipeline goroutine starts
		if _, err := os.Stat(*net); err != nil {
			lgr.Logger.Error("model artifact not found", slog.String("net", *net))
			os.Exit(1)
		}
		if _, err := os.Stat(*labels); err != nil {
			lgr.Logger.Error("labels file not found", slog.String("labels", *labels))
			os.Exit(1)
		}
		if *batchSize < 1 {
			lgr.Logger.Error("batch size must be a positive integer", slog.Int("batchSize", *batchSize))
			os.Exit(1)
		}

		detectSvc, err := detect.NewYolo(*labels, cfgSvc)
		if err != nil {
			lgr.Logger.Error("error loading labels", slog.Any("error", xerrors.New(err.Error())))
			os.Exit(1)
		}

		h, w, c := cfgSvc.GetModelInputShape()
		engineSvc, err := engine.NewDNN(*net, model.Shape{Height: h, Width: w, Channels: c})
		if err != nil {
			lgr.Logger.Error("error loading model", slog.Any("error", xerrors.New(err.Error())))
			os.Exit(1)
		}
		defer engineSvc.Close()

		svcs.DetectSvc = detectSvc
		svcs.EngineSvc = engineSvc

		opts = pipeline.Options{
			Net:        *net,
			Input:      *input,
			LabelsPath: *labels,
			BatchSize:  *batchSize,
			SaveStream: *saveStream,
			RelayAddr:  *relay,
		}
	} else {
		opts = pipeline.Options{
			RelayPort: *relayPort,
			WebPort:   *webPort,
		}
	}

	modeProc := modeProcessors[modeType]

	// Create mode processor result
	modeProcResult := make(chan error, 1)

	// Start the mode processor
	go func() {
		modeProcResult <- modeProc(canxCtx, svcs, opts)
	}()

	var procErr error

	// Wait for cancellation, mode proc or error
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"main context cancelled",
			)
			goto resume

		case err := <-modeProcResult:
			if err != nil {
				procErr = err
				lgr.Logger.Info(
					"mode processor exited",
					slog.Any("error", xerrors.New(err.Error())),
				)
			}
			goto resume
		}
	}

	// Wait in a non-blocking way for `waitOnShutdown` for all the go routines to exit
	// This is needed because the go routines may need to report errors as they are exiting
resume:
	// Cancel the context if not already cancelled
	if canxCtx.Err() == nil {
		canxFn()
	}

	lgr.Logger.Info(
		"waiting for all go routines to exit",
	)

	timer := time.NewTimer(waitOnShutdown)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			// Timer expired, proceed with shutdown
			lgr.Logger.Info(
				"shutdown waiting period expired. Exiting now",
				slog.Duration("period", waitOnShutdown),
			)
			if procErr != nil {
				os.Exit(1)
			}
			return

		case err := <-modeProcResult:
			if err != nil {
				procErr = err
				lgr.Logger.Info(
					"mode processor exited",
					slog.Any("error", xerrors.New(err.Error())),
				)
			}
		}
	}
}
