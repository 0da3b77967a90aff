package naming

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamingFunctions(t *testing.T) {
	t.Parallel()
	release := "shop"
	runID := "0123456789ab"

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"ArtifactVolume", ArtifactVolume(release, runID), "shop-migration-0123456789ab-artifacts"},
		{"StatusRecord", StatusRecord(release, runID), "shop-migration-0123456789ab-status"},
		{"Lock", Lock(release, runID), "shop-migration-0123456789ab-lock"},
		{"StatusWriterRole", StatusWriterRole(release, runID), "shop-migration-0123456789ab-status-writer"},
		{"StageJob", StageJob(release, runID, "extract"), "shop-migration-0123456789ab-extract"},
		{"ArtifactPrefix", ArtifactPrefix(runID), "runs/0123456789ab/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.got)
		})
	}
}

func TestStageJob_FitsLabelLimit(t *testing.T) {
	t.Parallel()
	release := strings.Repeat("r", MaxReleaseLength)
	name := StageJob(release, "0123456789ab", "schema-upgrade")
	assert.LessOrEqual(t, len(name), 63)
}
