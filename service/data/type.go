package data

import "github.com/nadimsalem/ei-go/model"

type IService interface {
	NewRun(run model.Run) error
	UpdateRunStatus(id, status string) error
	RetrieveRuns() ([]model.Run, error)

	NewError(err interface{}) error
	NewSessionStats(stats model.SessionStats) error
	NewPreprocessStats(stats model.PreprocessStats) error
	NewEngineStats(stats model.EngineStats) error
	NewConsumerStats(stats model.ConsumerStats) error
	NewRelayStats(stats model.RelayStats) error
}
