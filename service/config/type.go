package config

type IService interface {
	GetModeMaxShutdownTime() int
	GetSessionPeriodicTimeout() int

	GetSampleInputFile() string
	GetOutputFolder() string
	GetDataFolder() string

	GetInputQueueCapacity() int
	GetOutputQueueCapacity() int

	GetCameraCaptureWidth() int
	GetCameraCaptureHeight() int

	GetModelInputShape() (int, int, int)
	GetConfidenceThreshold() float32
	GetNMSThreshold() float32

	GetRelayAddress() string
	GetRelayPort() int
	GetRelayJPEGQuality() int
	GetRelaySendBuffer() int
	GetRelayReceiveTimeout() int
	GetRenderInterval() int
	GetWebPort() int
}
