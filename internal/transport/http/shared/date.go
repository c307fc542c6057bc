package shared

import "time"

// ParseDate accepts RFC3339 or YYYY-MM-DD and returns the calendar day in
// UTC. Salary windows and pay dates carry no time of day.
func ParseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		if parsed, err = time.Parse("2006-01-02", value); err != nil {
			return time.Time{}, err
		}
	}
	parsed = parsed.UTC()
	return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC), nil
}
