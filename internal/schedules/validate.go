package schedules

import (
	"errors"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var timeOfDay = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Validate checks the user-supplied fields of a schedule.
func (s *Schedule) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.OwnerID, validation.Required),
		validation.Field(&s.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&s.AccountIDs, validation.Required, validation.Each(validation.Required)),
		validation.Field(&s.Recurrence),
		validation.Field(&s.Timezone, validation.By(knownTimezone)),
	)
}

// Validate checks that the recurrence has the fields its frequency needs.
func (r Recurrence) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Frequency,
			validation.Required,
			validation.In(FrequencyDaily, FrequencyWeekly, FrequencyCustom),
		),
		validation.Field(&r.Time,
			validation.When(r.Frequency == FrequencyDaily || r.Frequency == FrequencyWeekly,
				validation.Required,
				validation.Match(timeOfDay).Error("must be HH:MM"),
			),
		),
		validation.Field(&r.Days,
			validation.When(r.Frequency == FrequencyWeekly, validation.Required),
			validation.Each(validation.Min(time.Sunday), validation.Max(time.Saturday)),
		),
		validation.Field(&r.Expression,
			validation.When(r.Frequency == FrequencyCustom, validation.Required),
		),
	)
}

func knownTimezone(value any) error {
	tz, _ := value.(string)
	if tz == "" {
		return nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return errors.New("unknown timezone")
	}
	return nil
}
