package agenda

import (
	"fmt"
	"sort"
	"time"

	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/model"
)

const (
	FirstHour  = 7
	LastHour   = 22
	MaxColumns = 3
)

type Slot struct {
	Hour     int                     `json:"hora"`
	Label    string                  `json:"label"`
	Empty    bool                    `json:"vazio"`
	Events   []model.AppointmentView `json:"eventos"`
	Columns  int                     `json:"colunas"`
	Overflow int                     `json:"overflow"`
}

type Day struct {
	Date         string                  `json:"data"`
	Timezone     string                  `json:"timezone"`
	Slots        []Slot                  `json:"slots"`
	OutsideHours []model.AppointmentView `json:"outside_hours"`
}

// DailyView buckets the appointments starting on date (YYYY-MM-DD, clinic time) into hourly
// slots from FirstHour to LastHour by the hour of their start. An empty professionalID keeps
// every professional.
func DailyView(in []model.AppointmentView, date, professionalID string, loc *time.Location) (Day, error) {
	if loc == nil {
		loc = time.UTC
	}
	dayStart, err := time.ParseInLocation(model.DateLayout, date, loc)
	if err != nil {
		return Day{}, &BoundError{Field: "data", Value: date}
	}
	dayEnd := dayStart.AddDate(0, 0, 1)

	day := Day{
		Date:         date,
		Timezone:     loc.String(),
		Slots:        make([]Slot, 0, LastHour-FirstHour+1),
		OutsideHours: []model.AppointmentView{},
	}
	buckets := make(map[int][]model.AppointmentView)
	for _, a := range in {
		if professionalID != "" && deref(a.ProfessionalID) != professionalID {
			continue
		}
		if a.StartsAt.Before(dayStart) || !a.StartsAt.Before(dayEnd) {
			continue
		}
		h := a.StartsAt.In(loc).Hour()
		if h < FirstHour || h > LastHour {
			day.OutsideHours = append(day.OutsideHours, a)
			continue
		}
		buckets[h] = append(buckets[h], a)
	}
	sortByStart(day.OutsideHours)

	for h := FirstHour; h <= LastHour; h++ {
		events := buckets[h]
		sortByStart(events)
		if events == nil {
			events = []model.AppointmentView{}
		}
		cols := min(len(events), MaxColumns)
		day.Slots = append(day.Slots, Slot{
			Hour:     h,
			Label:    fmt.Sprintf("%02d:00", h),
			Empty:    len(events) == 0,
			Events:   events,
			Columns:  cols,
			Overflow: len(events) - cols,
		})
	}
	return day, nil
}

func sortByStart(in []model.AppointmentView) {
	sort.SliceStable(in, func(i, j int) bool { return in[i].StartsAt.Before(in[j].StartsAt) })
}
