package payroll

import (
	"fmt"
	"time"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
	yearLayout  = "2006"
	hourLayout  = "2006-01-02T15"
)

// PeriodKey renders the sortable period key of t for the given salary type.
// Project periods have no calendar key and return "".
func PeriodKey(salaryType string, t time.Time) string {
	switch salaryType {
	case SalaryTypeDaily:
		return t.Format(dayLayout)
	case SalaryTypeWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case SalaryTypeMonthly:
		return t.Format(monthLayout)
	case SalaryTypeYearly:
		return t.Format(yearLayout)
	case SalaryTypeHourly:
		return t.Format(hourLayout)
	}
	return ""
}

// PeriodWindow returns the first and last calendar day covered by period.
func PeriodWindow(salaryType, period string) (time.Time, time.Time, bool) {
	switch salaryType {
	case SalaryTypeDaily:
		day, err := time.Parse(dayLayout, period)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		return day, day, true
	case SalaryTypeWeekly:
		monday, ok := isoWeekStart(period)
		if !ok {
			return time.Time{}, time.Time{}, false
		}
		return monday, monday.AddDate(0, 0, 6), true
	case SalaryTypeMonthly:
		return monthWindow(period)
	case SalaryTypeYearly:
		start, err := time.Parse(yearLayout, period)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		return start, start.AddDate(1, 0, -1), true
	case SalaryTypeHourly:
		hour, err := time.Parse(hourLayout, period)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		day := dateOnly(hour)
		return day, day, true
	}
	return time.Time{}, time.Time{}, false
}

// PeriodLabel renders the human-readable form of period.
func PeriodLabel(salaryType, period string) string {
	switch salaryType {
	case SalaryTypeDaily:
		if day, err := time.Parse(dayLayout, period); err == nil {
			return day.Format("2 January 2006")
		}
	case SalaryTypeWeekly:
		if monday, ok := isoWeekStart(period); ok {
			year, week := monday.ISOWeek()
			return fmt.Sprintf("Week %d, %d", week, year)
		}
	case SalaryTypeMonthly:
		if start, err := time.Parse(monthLayout, period); err == nil {
			return start.Format("January 2006")
		}
	case SalaryTypeHourly:
		if hour, err := time.Parse(hourLayout, period); err == nil {
			return hour.Format("2 January 2006, 15:04")
		}
	}
	return period
}

func monthWindow(month string) (time.Time, time.Time, bool) {
	start, err := time.Parse(monthLayout, month)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, start.AddDate(0, 1, -1), true
}

func isoWeekStart(period string) (time.Time, bool) {
	var year, week int
	if _, err := fmt.Sscanf(period, "%4d-W%2d", &year, &week); err != nil {
		return time.Time{}, false
	}
	if week < 1 || week > 53 {
		return time.Time{}, false
	}
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	monday := jan4.AddDate(0, 0, -offset+(week-1)*7)
	if PeriodKey(SalaryTypeWeekly, monday) != period {
		return time.Time{}, false
	}
	return monday, true
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
