package completeness

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

// manifestPattern matches job manifests directly under an output root.
var manifestPattern = regexp.MustCompile(`^list_gpu_(\d+)\.json$`)

// ManifestKey is the root-relative key of a job's block manifest.
func ManifestKey(jobID string) string {
	return fmt.Sprintf("list_gpu_%s.json", jobID)
}

// ProgressLogKey is the root-relative key of a job's progress log for one iteration.
func ProgressLogKey(jobID string, iteration int) string {
	return fmt.Sprintf("list_gpu_%s_%d_processed.txt", jobID, iteration)
}

// ParseManifestKey extracts the job id from a manifest key.
func ParseManifestKey(key string) (jobID string, ok bool) {
	m := manifestPattern.FindStringSubmatch(key)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// sortJobIDs orders ids numerically; ids are digit strings, so length breaks ties first.
func sortJobIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.ParseUint(ids[i], 10, 64)
		b, errB := strconv.ParseUint(ids[j], 10, 64)
		if errA == nil && errB == nil && a != b {
			return a < b
		}
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) < len(ids[j])
		}
		return ids[i] < ids[j]
	})
}
