package artifacts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marrow-labs/truthspine/pkg/canonicalize"
)

// ActionSkippedStale marks a latest-pointer update that was skipped because
// the pointer already references a newer day.
const ActionSkippedStale Action = "SKIP_STALE"

// LatestPointerPath is the single mutable pointer file of a family.
func LatestPointerPath(family string) string {
	return family + "/latest.json"
}

// latestPointer is the pointer file body.
type latestPointer struct {
	DayUTC string `json:"day_utc"`
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// WriteLatestPointer advances a family's mutable latest pointer to a day
// artifact that was just established. Day keys order lexicographically, so
// replaying an older day never rolls the pointer back.
func WriteLatestPointer(ctx context.Context, s Store, family, day string, res WriteResult) (WriteResult, error) {
	if err := ValidateDayKey(day); err != nil {
		return WriteResult{}, err
	}

	path := LatestPointerPath(family)
	if data, err := s.Read(ctx, path); err == nil {
		var cur latestPointer
		if json.Unmarshal(data, &cur) == nil && cur.DayUTC > day {
			return WriteResult{Path: path, SHA256: canonicalize.HashBytes(data), Action: ActionSkippedStale}, nil
		}
	}

	body, err := canonicalize.Canonicalize(latestPointer{DayUTC: day, Path: res.Path, SHA256: res.SHA256})
	if err != nil {
		return WriteResult{}, fmt.Errorf("artifacts: pointer body: %w", err)
	}
	return s.PutMutablePointer(ctx, path, append(body, '\n'))
}
