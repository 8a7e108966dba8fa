package config

// Default configuration constants for the sensorschema command
const (
	DefaultInputPath  = "SensorInfo.json"
	DefaultRootSchema = "SensorInfo"
	DefaultSchemaGlob = "*.json"

	ServiceName    = "sensorschema"
	ServiceVersion = "1.0.0"
)

// Exit codes returned by the sensorschema command.
const (
	ExitOK              = 0
	ExitFatal           = 1
	ExitInvalidDocument = 2
)
