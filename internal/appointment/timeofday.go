package appointment

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time with no date, counted in seconds past midnight.
type TimeOfDay int32

const secondsPerDay = 24 * 60 * 60

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*3600 + minute*60)
}

// ParseTimeOfDay accepts "15:04" or "15:04:05". "24:00" is end of day, the
// only end time Add can produce past 23:59:59.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	if raw == "24:00" || raw == "24:00:00" {
		return secondsPerDay, nil
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return TimeOfDay(t.Hour()*3600 + t.Minute()*60 + t.Second()), nil
		}
	}
	return 0, fmt.Errorf("%w: invalid time of day %q", ErrValidation, raw)
}

func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t) * time.Second
}

// Add returns t+d and false when the result leaves the day.
func (t TimeOfDay) Add(d time.Duration) (TimeOfDay, bool) {
	out := int64(t) + int64(d/time.Second)
	if out < 0 || out > secondsPerDay {
		return 0, false
	}
	return TimeOfDay(out), true
}

func (t TimeOfDay) Hour() int   { return int(t) / 3600 }
func (t TimeOfDay) Minute() int { return int(t) % 3600 / 60 }
func (t TimeOfDay) Second() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	if t.Second() != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
	}
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
