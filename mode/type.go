package mode

import (
	"context"
	"log/slog"

	"github.com/nadimsalem/ei-go/model"
	"github.com/nadimsalem/ei-go/pipeline"
	"github.com/nadimsalem/ei-go/service/data"
	"github.com/nadimsalem/ei-go/service/lgr"
)

type Processor func(canxCtx context.Context,
	svcs pipeline.ServicesFactory,
	opts pipeline.Options) error

func procStats(datasvc data.IService, stats interface{}) {
	var err error
	switch stats := stats.(type) {
	case model.SessionStats:
		err = datasvc.NewSessionStats(stats)
	case model.PreprocessStats:
		err = datasvc.NewPreprocessStats(stats)
	case model.EngineStats:
		err = datasvc.NewEngineStats(stats)
	case model.ConsumerStats:
		err = datasvc.NewConsumerStats(stats)
	case model.RelayStats:
		err = datasvc.NewRelayStats(stats)
	default:
		lgr.Logger.Error(
			"unknown stats type",
			slog.Any("stats", stats),
		)
		return
	}

	if err != nil {
		lgr.Logger.Error(
			"failed to store stats",
			slog.Any("stats", stats),
			slog.Any("error", err),
		)
	}
}

func procError(datasvc data.IService, err interface{}) {
	errTemp := datasvc.NewError(err)
	if errTemp != nil {
		lgr.Logger.Error(
			"failed to store error",
			slog.Any("error", errTemp),
		)
	}
}
