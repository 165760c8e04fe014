// Package attribution decides which sub-application is responsible for a record.
package attribution

import (
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/models"
)

// ResolveResponsibleApp returns the name of the app that ran most recently, or nil when there
// are no apps.
//
// Apps without a run timestamp lose to any app that has one. When several apps share the
// winning timestamp (or none has one) the earliest entry in apps wins.
func ResolveResponsibleApp(apps []models.AppExecution) *string {
	if len(apps) == 0 {
		return nil
	}

	best := 0
	for i := 1; i < len(apps); i++ {
		if ranAfter(apps[i], apps[best]) {
			best = i
		}
	}

	name := apps[best].Name
	return &name
}

// ranAfter reports whether a strictly outranks b
func ranAfter(a, b models.AppExecution) bool {
	switch {
	case a.RanAt == nil:
		return false
	case b.RanAt == nil:
		return true
	default:
		return a.RanAt.After(*b.RanAt)
	}
}
