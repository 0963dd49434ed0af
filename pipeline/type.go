package pipeline

import (
	"context"

	"github.com/nadimsalem/ei-go/model"
	"github.com/nadimsalem/ei-go/service/config"
	"github.com/nadimsalem/ei-go/service/data"
	"github.com/nadimsalem/ei-go/service/detect"
	"github.com/nadimsalem/ei-go/service/engine"
	"gocv.io/x/gocv"
)

// item is a queue element carrying either a batch or the end-of-stream
// sentinel. The tagged variant forces every consumer to handle termination
// explicitly instead of testing for a magic nil.
type item[T any] struct {
	val T
	eos bool
}

// FrameBatch pairs original frames one-to-one with their preprocessed
// counterparts. Ordering is preserved through both queues so that batch i's
// outputs always meet batch i's originals.
type FrameBatch struct {
	Originals    []gocv.Mat
	Preprocessed []gocv.Mat
}

// ResultBatch carries the original frames and the per-frame raw output
// tensors returned by the engine, in submission order.
type ResultBatch struct {
	Originals []gocv.Mat
	Outputs   [][]model.Tensor
}

type ServicesFactory struct {
	CfgSvc    config.IService
	DataSvc   data.IService
	EngineSvc engine.IService
	DetectSvc detect.IService
}

// Options carries one invocation's parameters across modes.
type Options struct {
	// detect mode
	Net        string
	Input      string
	LabelsPath string
	BatchSize  int
	SaveStream bool
	RelayAddr  string

	// serve mode
	RelayPort int
	WebPort   int
}

const (
	SinkWindow = "window"
	SinkDisk   = "disk"
	SinkRelay  = "relay"
)

func chooseSink(opts Options, streaming bool) string {
	if opts.RelayAddr != "" {
		return SinkRelay
	}
	if !streaming || opts.SaveStream {
		return SinkDisk
	}
	return SinkWindow
}

func closeMats(mats []gocv.Mat) {
	for _, m := range mats {
		m.Close()
	}
}

// emit sends on one of the session streams without ever blocking past
// cancellation. Stats and errors are droppable once the session winds down.
func emit(canxCtx context.Context, stream chan interface{}, v interface{}) {
	select {
	case <-canxCtx.Done():
	case stream <- v:
	}
}
