package data

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nadimsalem/ei-go/model"
	"github.com/nadimsalem/ei-go/service/config"
)

type filesDBService struct {
	CfgSvc config.IService
}

// NewFilesDB persists runs, stats and errors as JSON files under the data
// folder. Good enough for a single edge device; swap for a real store behind
// the same interface when fleets need it.
func NewFilesDB(cfgsvc config.IService) IService {
	return &filesDBService{
		CfgSvc: cfgsvc,
	}
}

func (svc *filesDBService) NewRun(run model.Run) error {
	runs, err := svc.RetrieveRuns()
	if err != nil {
		return err
	}

	runs = append(runs, run)
	return writeEntities(runs, "runs", svc.CfgSvc)
}

func (svc *filesDBService) UpdateRunStatus(id, status string) error {
	runs, err := svc.RetrieveRuns()
	if err != nil {
		return err
	}

	for i, run := range runs {
		if run.ID == id {
			runs[i].Status = status
			runs[i].EndTime = time.Now().Unix()
			break
		}
	}

	return writeEntities(runs, "runs", svc.CfgSvc)
}

func (svc *filesDBService) RetrieveRuns() ([]model.Run, error) {
	return retrieveEntities[model.Run]("runs", svc.CfgSvc)
}

func (svc *filesDBService) NewError(err interface{}) error {
	var customErr model.CustomError
	if custom, ok := err.(model.CustomError); ok {
		customErr = custom
	} else if e, ok := err.(error); ok {
		customErr.Processor = "N/A"
		customErr.Inner = e
		customErr.Message = e.Error()
	} else {
		customErr.Processor = "N/A"
		customErr.Message = fmt.Sprintf("%v", err)
	}

	inner := ""
	if customErr.Inner != nil {
		inner = customErr.Inner.Error()
	}

	errorData := struct {
		Timestamp  int64                  `json:"timestamp"`
		Processor  string                 `json:"processor"`
		Inner      string                 `json:"innerError"`
		Message    string                 `json:"message"`
		StackTrace string                 `json:"stackTrace"`
		Misc       map[string]interface{} `json:"misc"`
	}{
		Timestamp:  time.Now().Unix(),
		Processor:  customErr.Processor,
		Inner:      inner,
		Message:    customErr.Message,
		StackTrace: customErr.StackTrace,
		Misc:       customErr.Misc,
	}
	return newEntity(errorData, "errors", svc.CfgSvc)
}

func (svc *filesDBService) NewSessionStats(stats model.SessionStats) error {
	stats.Timestamp = time.Now().Unix()
	return newEntity(stats, "session-stats", svc.CfgSvc)
}

func (svc *filesDBService) NewPreprocessStats(stats model.PreprocessStats) error {
	stats.Timestamp = time.Now().Unix()
	return newEntity(stats, "preprocess-stats", svc.CfgSvc)
}

func (svc *filesDBService) NewEngineStats(stats model.EngineStats) error {
	stats.Timestamp = time.Now().Unix()
	return newEntity(stats, "engine-stats", svc.CfgSvc)
}

func (svc *filesDBService) NewConsumerStats(stats model.ConsumerStats) error {
	stats.Timestamp = time.Now().Unix()
	return newEntity(stats, "consumer-stats", svc.CfgSvc)
}

func (svc *filesDBService) NewRelayStats(stats model.RelayStats) error {
	stats.Timestamp = time.Now().Unix()
	return newEntity(stats, "relay-stats", svc.CfgSvc)
}

func newEntity[T any](entity T, filename string, cfgsvc config.IService) error {
	entities, err := retrieveEntities[T](filename, cfgsvc)
	if err != nil {
		return err
	}

	entities = append(entities, entity)
	return writeEntities(entities, filename, cfgsvc)
}

func writeEntities[T any](entities []T, filename string, cfgsvc config.IService) error {
	data, err := json.MarshalIndent(entities, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfgsvc.GetDataFolder(), 0755); err != nil {
		return err
	}

	output := fmt.Sprintf("%s/%s.json", cfgsvc.GetDataFolder(), filename)
	return os.WriteFile(output, data, 0644)
}

func retrieveEntities[T any](filename string, cfgsvc config.IService) ([]T, error) {
	entities := []T{}

	data, err := os.ReadFile(fmt.Sprintf("%s/%s.json", cfgsvc.GetDataFolder(), filename))
	if err != nil {
		// File not created yet; start with an empty slice
		return entities, nil
	}

	if err := json.Unmarshal(data, &entities); err != nil {
		return entities, err
	}

	return entities, nil
}
