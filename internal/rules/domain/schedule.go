package rules

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed five-field cron-like expression
// (minute hour day-of-month month day-of-week), matched at minute
// granularity against UTC time.
type Schedule struct {
	minute scheduleField
	hour   scheduleField
	dom    scheduleField
	month  scheduleField
	dow    scheduleField
}

type scheduleField struct {
	any  bool
	step int
	set  map[int]bool
}

// ParseSchedule parses a cron-like expression. Supported field forms:
// "*", "*/n", "a", "a-b" and "a,b,c".
func ParseSchedule(expr string) (Schedule, error) {
	parts := strings.Fields(strings.TrimSpace(expr))
	if len(parts) != 5 {
		return Schedule{}, errors.New("schedule must have 5 fields: minute hour dom month dow")
	}
	bounds := [][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	fields := make([]scheduleField, 5)
	for i, part := range parts {
		field, err := parseScheduleField(part, bounds[i][0], bounds[i][1])
		if err != nil {
			return Schedule{}, err
		}
		fields[i] = field
	}
	return Schedule{minute: fields[0], hour: fields[1], dom: fields[2], month: fields[3], dow: fields[4]}, nil
}

// Matches reports whether the schedule fires at the given instant.
func (s Schedule) Matches(t time.Time) bool {
	t = t.UTC()
	return s.minute.matches(t.Minute()) &&
		s.hour.matches(t.Hour()) &&
		s.dom.matches(t.Day()) &&
		s.month.matches(int(t.Month())) &&
		s.dow.matches(int(t.Weekday()))
}

func parseScheduleField(part string, lo, hi int) (scheduleField, error) {
	if part == "*" {
		return scheduleField{any: true}, nil
	}
	if strings.HasPrefix(part, "*/") {
		step, err := strconv.Atoi(part[2:])
		if err != nil || step <= 0 {
			return scheduleField{}, errors.New("invalid step in schedule field " + part)
		}
		return scheduleField{any: true, step: step}, nil
	}
	set := make(map[int]bool)
	for _, chunk := range strings.Split(part, ",") {
		if from, to, ok := strings.Cut(chunk, "-"); ok {
			start, err1 := strconv.Atoi(from)
			end, err2 := strconv.Atoi(to)
			if err1 != nil || err2 != nil || start > end {
				return scheduleField{}, errors.New("invalid range in schedule field " + part)
			}
			for v := start; v <= end; v++ {
				if v < lo || v > hi {
					return scheduleField{}, errors.New("schedule value out of range in " + part)
				}
				set[v] = true
			}
			continue
		}
		v, err := strconv.Atoi(chunk)
		if err != nil {
			return scheduleField{}, errors.New("invalid schedule field " + part)
		}
		if v < lo || v > hi {
			return scheduleField{}, errors.New("schedule value out of range in " + part)
		}
		set[v] = true
	}
	if len(set) == 0 {
		return scheduleField{}, errors.New("empty schedule field " + part)
	}
	return scheduleField{set: set}, nil
}

func (f scheduleField) matches(v int) bool {
	if f.any {
		if f.step > 0 {
			return v%f.step == 0
		}
		return true
	}
	return f.set[v]
}
