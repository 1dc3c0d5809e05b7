package store

import "lineup/internal/models"

// Actions that move an entry through its lifecycle and the statuses they are
// allowed from. Terminal statuses never appear on the right-hand side of a
// transition; acknowledge only stamps a timestamp on a served entry.
var transitionMap = map[string][]string{
	"serve":       {models.StatusWaiting},
	"cancel":      {models.StatusWaiting},
	"verify":      {models.StatusWaiting},
	"acknowledge": {models.StatusServed},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
