package agenda

import (
	"time"

	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/model"
)

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Conflicts returns the ids of existing appointments that share the candidate's professional
// and overlap it. Cancelled appointments never conflict, and neither does the candidate itself.
func Conflicts(candidate model.Appointment, existing []model.Appointment) []string {
	if candidate.Status == model.StatusCancelado || deref(candidate.ProfessionalID) == "" {
		return nil
	}
	var ids []string
	for _, e := range existing {
		if e.ID == candidate.ID && candidate.ID != "" {
			continue
		}
		if e.Status == model.StatusCancelado || deref(e.ProfessionalID) != deref(candidate.ProfessionalID) {
			continue
		}
		if Overlaps(candidate.StartsAt, candidate.EndsAt, e.StartsAt, e.EndsAt) {
			ids = append(ids, e.ID)
		}
	}
	return ids
}
