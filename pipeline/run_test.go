package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/nadimsalem/ei-go/model"
	"github.com/nadimsalem/ei-go/service/config"
	"github.com/nadimsalem/ei-go/service/data"
	"github.com/nadimsalem/ei-go/service/engine"
)

func newRunServices(t *testing.T) (ServicesFactory, string) {
	t.Helper()

	outputFolder := t.TempDir()
	t.Setenv("OUTPUT_FOLDER", outputFolder)
	t.Setenv("DATA_FOLDER", t.TempDir())

	cfgSvc := config.NewEnv()
	return ServicesFactory{
		CfgSvc:    cfgSvc,
		DataSvc:   data.NewFilesDB(cfgSvc),
		EngineSvc: engine.NewFake(model.Shape{Height: 8, Width: 8, Channels: 3}),
		DetectSvc: &stubDetect{},
	}, outputFolder
}

func writeTestImages(t *testing.T, tags ...uint8) string {
	t.Helper()

	dir := t.TempDir()
	for i, tag := range tags {
		img := taggedMat(tag)
		require.True(t, gocv.IMWrite(filepath.Join(dir, fmt.Sprintf("img_%d.png", i)), img))
		img.Close()
	}
	return dir
}

func retrieveSingleRun(t *testing.T, svcs ServicesFactory) model.Run {
	t.Helper()

	runs, err := svcs.DataSvc.RetrieveRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	return runs[0]
}

func TestRunWritesOneOutputPerImage(t *testing.T) {
	svcs, outputFolder := newRunServices(t)
	input := writeTestImages(t, 10, 20, 30)
	errorStream, statsStream := testStreams()

	err := Run(context.Background(), svcs, Options{Input: input, BatchSize: 1}, errorStream, statsStream)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		fn := filepath.Join(outputFolder, fmt.Sprintf("output_%d.png", i))
		require.FileExists(t, fn)
	}
	require.NoFileExists(t, filepath.Join(outputFolder, "output_3.png"))

	run := retrieveSingleRun(t, svcs)
	require.Equal(t, model.RunStatusCompleted, run.Status)
	require.Equal(t, SinkDisk, run.Sink)
	require.Empty(t, errorStream)
}

func TestRunSingleFullBatch(t *testing.T) {
	svcs, outputFolder := newRunServices(t)
	input := writeTestImages(t, 1, 2, 3, 4)
	errorStream, statsStream := testStreams()

	err := Run(context.Background(), svcs, Options{Input: input, BatchSize: 4}, errorStream, statsStream)
	require.NoError(t, err)

	entries, readErr := os.ReadDir(outputFolder)
	require.NoError(t, readErr)
	require.Len(t, entries, 4)

	var preStats *model.PreprocessStats
	var consStats *model.ConsumerStats
	for len(statsStream) > 0 {
		switch s := (<-statsStream).(type) {
		case model.PreprocessStats:
			preStats = &s
		case model.ConsumerStats:
			consStats = &s
		}
	}
	require.NotNil(t, preStats)
	require.Equal(t, 1, preStats.Batches)
	require.Equal(t, 0, preStats.Dropped)
	require.NotNil(t, consStats)
	require.Equal(t, 4, consStats.Frames)
}

func TestRunDropsTrailingFramesBelowBatchSize(t *testing.T) {
	svcs, outputFolder := newRunServices(t)
	input := writeTestImages(t, 1, 2, 3, 4, 5)
	errorStream, statsStream := testStreams()

	err := Run(context.Background(), svcs, Options{Input: input, BatchSize: 2}, errorStream, statsStream)
	require.NoError(t, err)

	entries, readErr := os.ReadDir(outputFolder)
	require.NoError(t, readErr)
	require.Len(t, entries, 4)
}

func TestRunEmptyInputFolderIsValidationError(t *testing.T) {
	svcs, outputFolder := newRunServices(t)
	errorStream, statsStream := testStreams()

	err := Run(context.Background(), svcs, Options{Input: t.TempDir(), BatchSize: 1}, errorStream, statsStream)
	require.NoError(t, err)

	entries, readErr := os.ReadDir(outputFolder)
	require.NoError(t, readErr)
	require.Empty(t, entries)

	run := retrieveSingleRun(t, svcs)
	require.Equal(t, model.RunStatusInvalid, run.Status)
}

func TestRunRejectsNonPositiveBatchSize(t *testing.T) {
	svcs, _ := newRunServices(t)
	errorStream, statsStream := testStreams()

	err := Run(context.Background(), svcs, Options{Input: "whatever", BatchSize: 0}, errorStream, statsStream)
	require.ErrorContains(t, err, "batch size")
}

func TestRunReturnsWhenOutputFolderUnusable(t *testing.T) {
	svcs, _ := newRunServices(t)
	input := writeTestImages(t, 1, 2, 3, 4, 5, 6)

	// A regular file where the output folder should go makes MkdirAll fail,
	// killing the only sink while the stages upstream keep producing into
	// queues of capacity one.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	t.Setenv("OUTPUT_FOLDER", filepath.Join(blocker, "out"))
	t.Setenv("INPUT_QUEUE_CAPACITY", "1")
	t.Setenv("OUTPUT_QUEUE_CAPACITY", "1")

	errorStream, statsStream := testStreams()
	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), svcs, Options{Input: input, BatchSize: 1}, errorStream, statsStream)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not join after sink setup failed")
	}

	run := retrieveSingleRun(t, svcs)
	require.Equal(t, model.RunStatusCancelled, run.Status)

	custom := (<-errorStream).(model.CustomError)
	require.Equal(t, "consumer", custom.Processor)
}

func TestRunMissingInputIsFatal(t *testing.T) {
	svcs, _ := newRunServices(t)
	errorStream, statsStream := testStreams()

	err := Run(context.Background(), svcs, Options{Input: "no-such-input", BatchSize: 1}, errorStream, statsStream)
	require.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestRunKeepsResultsOnTheirOwnFrames(t *testing.T) {
	svcs, _ := newRunServices(t)
	input := writeTestImages(t, 10, 20, 30)

	svcs.EngineSvc = echoEngine()

	var decoded []uint8
	var annotated []uint8
	svcs.DetectSvc = &stubDetect{
		decodeFn: func(outputs []model.Tensor, frameWidth, frameHeight int) []model.Detection {
			decoded = append(decoded, uint8(outputs[0].Data[0]))
			return nil
		},
		annotateFn: func(frame *gocv.Mat, detections []model.Detection, fps float64) {
			annotated = append(annotated, matTag(*frame))
		},
	}

	errorStream, statsStream := testStreams()
	err := Run(context.Background(), svcs, Options{Input: input, BatchSize: 1}, errorStream, statsStream)
	require.NoError(t, err)

	// Each frame's decoded output must carry the tag of that same frame.
	require.Equal(t, []uint8{10, 20, 30}, decoded)
	require.Equal(t, decoded, annotated)
}
