package model

import (
	"fmt"
	"image"
	"runtime/debug"
)

type CustomError struct {
	Processor  string                 `json:"processor"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func GenError(proc string, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	return CustomError{
		Processor:  proc,
		Inner:      err,
		Message:    fmt.Sprintf(messagef, args...),
		StackTrace: string(debug.Stack()),
		Misc:       misc,
	}
}

// Shape is the input tensor shape required by an inference engine.
type Shape struct {
	Height   int `json:"height"`
	Width    int `json:"width"`
	Channels int `json:"channels"`
}

// Tensor is a raw output buffer returned by an inference engine.
// Data is laid out row-major according to Dims.
type Tensor struct {
	Data []float32 `json:"-"`
	Dims []int     `json:"dims"`
}

// Squeeze drops leading singleton dimensions. Some engine versions deliver
// per-frame outputs with an extra batch dimension of 1; decoding expects the
// unwrapped layout.
func (t Tensor) Squeeze() Tensor {
	dims := t.Dims
	for len(dims) > 1 && dims[0] == 1 {
		dims = dims[1:]
	}
	return Tensor{Data: t.Data, Dims: dims}
}

type Detection struct {
	ClassID    int             `json:"classId"`
	Label      string          `json:"label"`
	Confidence float32         `json:"confidence"`
	Rect       image.Rectangle `json:"rect"`
}

type Run struct {
	ID        string `json:"id"`
	Net       string `json:"net"`
	Input     string `json:"input"`
	Labels    string `json:"labels"`
	BatchSize int    `json:"batchSize"`
	Sink      string `json:"sink"`
	Status    string `json:"status"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
}

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusInvalid   = "invalid"
	RunStatusCancelled = "cancelled"
)

type PreprocessStats struct {
	Session   string `json:"session"`
	Frames    int    `json:"frames"`
	Batches   int    `json:"batches"`
	Dropped   int    `json:"dropped"`
	Errors    int    `json:"errors"`
	Uptime    int64  `json:"uptime"`
	Timestamp int64  `json:"timestamp"`
}

type EngineStats struct {
	Session      string  `json:"session"`
	Batches      int     `json:"batches"`
	Errors       int     `json:"errors"`
	Uptime       int64   `json:"uptime"`
	AvgInferTime float64 `json:"avgInferTime"`
	Timestamp    int64   `json:"timestamp"`
}

type ConsumerStats struct {
	Session   string `json:"session"`
	Sink      string `json:"sink"`
	Frames    int    `json:"frames"`
	Errors    int    `json:"errors"`
	FPS       int    `json:"fps"`
	Uptime    int64  `json:"uptime"`
	Timestamp int64  `json:"timestamp"`
}

type RelayStats struct {
	Name      string `json:"name"`
	Sent      int    `json:"sent"`
	Dropped   int    `json:"dropped"`
	Received  int    `json:"received"`
	Errors    int    `json:"errors"`
	Uptime    int64  `json:"uptime"`
	Timestamp int64  `json:"timestamp"`
}

type SessionStats struct {
	ID        string `json:"id"`
	Input     string `json:"input"`
	Uptime    int64  `json:"uptime"`
	Timestamp int64  `json:"timestamp"`
}
