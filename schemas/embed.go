// Package schemas provides the embedded SensorInfo JSON schema set.
package schemas

import "embed"

// Pattern matches every schema document in FS.
const Pattern = "sensor/*.json"

// FS contains all JSON schema files embedded at compile time.
// Access schemas via FS.ReadFile("sensor/SensorInfo.json"), etc.
//
//go:embed sensor/*.json
var FS embed.FS
