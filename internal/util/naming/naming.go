package naming

import "fmt"

// Naming functions for migration resources.
// Every resource of a run shares the {release}-migration-{runID} stem so a run
// can be located and inspected without consulting any other state.

func runStem(release, runID string) string {
	return fmt.Sprintf("%s-migration-%s", release, runID)
}

func ArtifactVolume(release, runID string) string {
	return runStem(release, runID) + "-artifacts"
}

func StatusRecord(release, runID string) string {
	return runStem(release, runID) + "-status"
}

func Lock(release, runID string) string {
	return runStem(release, runID) + "-lock"
}

func StatusWriterRole(release, runID string) string {
	return runStem(release, runID) + "-status-writer"
}

func StageJob(release, runID, stage string) string {
	return fmt.Sprintf("%s-%s", runStem(release, runID), stage)
}

// ArtifactPrefix is the object key prefix of a run in an object storage bucket.
func ArtifactPrefix(runID string) string {
	return fmt.Sprintf("runs/%s/", runID)
}

// MaxReleaseLength keeps the longest stage job name within the 63 character
// limit Kubernetes applies to the job-name label.
const MaxReleaseLength = 24
