package migration

import "fmt"

// StageName identifies one stage of the chain.
type StageName string

const (
	StageExtract       StageName = "extract"
	StageInstall       StageName = "install"
	StageSchemaUpgrade StageName = "schema-upgrade"
	StageDataMigrate   StageName = "data-migrate"
)

// Stages lists every stage in chain order.
var Stages = []StageName{StageExtract, StageInstall, StageSchemaUpgrade, StageDataMigrate}

// Ordinal returns the 1-based position of the stage in the full chain,
// or 0 for an unknown name.
func (s StageName) Ordinal() int {
	for i, name := range Stages {
		if name == s {
			return i + 1
		}
	}
	return 0
}

// IsPluginStage reports whether the stage belongs to the plugin part of the chain.
func (s StageName) IsPluginStage() bool {
	return s == StageExtract || s == StageInstall
}

// ParseStageName validates a stage name given on the command line.
func ParseStageName(s string) (StageName, error) {
	name := StageName(s)
	if name.Ordinal() == 0 {
		return "", fmt.Errorf("unknown stage %q: must be one of %v", s, Stages)
	}
	return name, nil
}
