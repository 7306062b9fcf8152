// Package directory keeps the clinic's own copy of each tenant's name and timezone, fed by
// auth-service's clinic.created events.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/dentalcare/libs/events"
	"github.com/md-rashed-zaman/dentalcare/libs/kafkax"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/agenda"
)

type ClinicUpserter interface {
	Upsert(ctx context.Context, id, name, timezone string) error
}

// Handler stores the clinic carried by a clinic.created message. Other topics are ignored.
func Handler(store ClinicUpserter) kafkax.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		if kafkax.MetaOf(msg).EventType != events.ClinicCreated {
			return nil
		}
		var p events.ClinicCreatedPayload
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			return fmt.Errorf("decode clinic.created: %w", err)
		}
		if strings.TrimSpace(p.ClinicID) == "" {
			return errors.New("clinic.created without clinic_id")
		}
		tz := strings.TrimSpace(p.Timezone)
		if tz == "" || agenda.Location(tz).String() != tz {
			tz = agenda.DefaultTimezone
		}
		return store.Upsert(ctx, p.ClinicID, p.ClinicName, tz)
	}
}
