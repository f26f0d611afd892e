package lib

import (
	"fmt"
	"log"
)

// AllFrameIDs returns the train identifiers followed by the val identifiers,
// in the order the source lists them.
func AllFrameIDs(src SplitSource) ([]string, error) {
	train, err := src.Split(SplitTrain)
	if err != nil {
		return nil, fmt.Errorf("list %s frames: %w", SplitTrain, err)
	}
	val, err := src.Split(SplitVal)
	if err != nil {
		return nil, fmt.Errorf("list %s frames: %w", SplitVal, err)
	}
	ids := make([]string, 0, len(train)+len(val))
	ids = append(ids, train...)
	ids = append(ids, val...)
	log.Printf("[Frames] Found %d total frames (%d train + %d val)", len(ids), len(train), len(val))
	return ids, nil
}
