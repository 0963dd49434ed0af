package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/nadimsalem/ei-go/model"
	"github.com/nadimsalem/ei-go/service/engine"
)

// echoEngine reports each frame's tag back as a one-element tensor, which is
// how these tests observe frame/result pairing.
func echoEngine() engine.IService {
	return engine.NewFakeWithFn(model.Shape{Height: 8, Width: 8, Channels: 3},
		func(batch []gocv.Mat) ([][]model.Tensor, error) {
			outputs := make([][]model.Tensor, len(batch))
			for i, m := range batch {
				outputs[i] = []model.Tensor{{
					Data: []float32{float32(matTag(m))},
					Dims: []int{1, 1},
				}}
			}
			return outputs, nil
		})
}

func feedBatches(inputQueue chan item[FrameBatch], tags ...uint8) {
	for _, tag := range tags {
		inputQueue <- item[FrameBatch]{val: FrameBatch{
			Originals:    []gocv.Mat{taggedMat(tag)},
			Preprocessed: []gocv.Mat{taggedMat(tag)},
		}}
	}
	inputQueue <- item[FrameBatch]{eos: true}
}

func TestDrivePreservesSubmissionOrder(t *testing.T) {
	svcs := ServicesFactory{EngineSvc: echoEngine()}
	inputQueue := make(chan item[FrameBatch], 10)
	outputQueue := make(chan item[ResultBatch], 10)
	errorStream, statsStream := testStreams()

	feedBatches(inputQueue, 1, 2, 3)
	drive(context.Background(), svcs, "test-session", inputQueue, outputQueue, errorStream, statsStream)

	for want := uint8(1); want <= 3; want++ {
		it := <-outputQueue
		require.False(t, it.eos)
		require.Len(t, it.val.Outputs, 1)

		// The result carries the original of the very frame it was computed
		// from, in the order the frames went in.
		require.Equal(t, want, matTag(it.val.Originals[0]))
		require.Equal(t, float32(want), it.val.Outputs[0][0].Data[0])
		closeMats(it.val.Originals)
	}

	it := <-outputQueue
	require.True(t, it.eos)

	stats := (<-statsStream).(model.EngineStats)
	require.Equal(t, 3, stats.Batches)
	require.Equal(t, 0, stats.Errors)
}

func TestDriveSkipsFailedBatchAndContinues(t *testing.T) {
	calls := 0
	failing := engine.NewFakeWithFn(model.Shape{Height: 8, Width: 8, Channels: 3},
		func(batch []gocv.Mat) ([][]model.Tensor, error) {
			calls++
			if calls == 2 {
				return nil, fmt.Errorf("accelerator rejected batch")
			}
			outputs := make([][]model.Tensor, len(batch))
			for i, m := range batch {
				outputs[i] = []model.Tensor{{Data: []float32{float32(matTag(m))}, Dims: []int{1, 1}}}
			}
			return outputs, nil
		})

	svcs := ServicesFactory{EngineSvc: failing}
	inputQueue := make(chan item[FrameBatch], 10)
	outputQueue := make(chan item[ResultBatch], 10)
	errorStream, statsStream := testStreams()

	feedBatches(inputQueue, 1, 2, 3)
	drive(context.Background(), svcs, "test-session", inputQueue, outputQueue, errorStream, statsStream)

	var tags []uint8
	for it := range outputQueue {
		if it.eos {
			break
		}
		tags = append(tags, matTag(it.val.Originals[0]))
		closeMats(it.val.Originals)
	}
	require.Equal(t, []uint8{1, 3}, tags)

	custom := (<-errorStream).(model.CustomError)
	require.Equal(t, "engine_driver", custom.Processor)

	stats := (<-statsStream).(model.EngineStats)
	require.Equal(t, 2, stats.Batches)
	require.Equal(t, 1, stats.Errors)
}

func TestDriveForwardsSentinel(t *testing.T) {
	svcs := ServicesFactory{EngineSvc: echoEngine()}
	inputQueue := make(chan item[FrameBatch], 1)
	outputQueue := make(chan item[ResultBatch], 1)
	errorStream, statsStream := testStreams()

	inputQueue <- item[FrameBatch]{eos: true}
	drive(context.Background(), svcs, "test-session", inputQueue, outputQueue, errorStream, statsStream)

	it := <-outputQueue
	require.True(t, it.eos)
	require.Empty(t, outputQueue)
}
