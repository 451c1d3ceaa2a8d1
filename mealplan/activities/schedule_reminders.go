package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/planweaver/planweaver/engine"
	"github.com/planweaver/planweaver/logging"
	"github.com/planweaver/planweaver/mealplan"
)

// ReminderSchedule holds the cron expression for each meal slot's prep
// reminder, evaluated within the day the meal belongs to.
type ReminderSchedule struct {
	Breakfast string `yaml:"breakfast"`
	Lunch     string `yaml:"lunch"`
	Dinner    string `yaml:"dinner"`
}

// DefaultReminderSchedule returns the stock reminder times.
func DefaultReminderSchedule() ReminderSchedule {
	return ReminderSchedule{
		Breakfast: "0 7 * * *",
		Lunch:     "30 11 * * *",
		Dinner:    "0 17 * * *",
	}
}

func (s ReminderSchedule) expr(mealType string) string {
	switch mealType {
	case "breakfast":
		return s.Breakfast
	case "lunch":
		return s.Lunch
	case "dinner":
		return s.Dinner
	default:
		return "0 8 * * *"
	}
}

// ScheduleReminders derives a prep reminder for every meal in the plan.
// Reminder times come from the week identifier and the configured cron
// expressions, never the wall clock, so re-invocation yields the same
// schedule.
type ScheduleReminders struct {
	Schedule ReminderSchedule
}

func (a *ScheduleReminders) Name() string { return mealplan.ActivityScheduleReminders }

func (a *ScheduleReminders) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in mealplan.RemindersInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, engine.Permanentf("decoding input: %v", err)
	}

	schedule := a.Schedule
	if schedule == (ReminderSchedule{}) {
		schedule = DefaultReminderSchedule()
	}

	start, err := WeekStart(in.Plan.Week)
	if err != nil {
		return nil, engine.Permanentf("invalid week identifier %q: %v", in.Plan.Week, err)
	}

	var reminders []mealplan.Reminder
	for _, day := range in.Plan.Days {
		dayStart := start.AddDate(0, 0, day.Day)
		for _, meal := range day.Meals {
			sched, err := cron.ParseStandard(schedule.expr(meal.MealType))
			if err != nil {
				return nil, engine.Permanentf("invalid reminder schedule for %s: %v", meal.MealType, err)
			}
			reminders = append(reminders, mealplan.Reminder{
				Day:      day.Day,
				MealType: meal.MealType,
				At:       sched.Next(dayStart),
				Message:  fmt.Sprintf("Prep %s: %s", meal.MealType, meal.Name),
			})
		}
	}

	logging.FromContext(ctx).Debug("reminders scheduled", "count", len(reminders))
	return json.Marshal(mealplan.RemindersResult{Reminders: reminders})
}

// WeekStart returns the UTC midnight of the Monday opening an ISO week
// identifier such as "2025-W37".
func WeekStart(week string) (time.Time, error) {
	var year, num int
	if _, err := fmt.Sscanf(week, "%d-W%d", &year, &num); err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-Www: %w", err)
	}
	if num < 1 || num > isoWeeksIn(year) {
		return time.Time{}, fmt.Errorf("week number %d out of range for %d", num, year)
	}

	// January 4th is always inside ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	week1Monday := jan4.AddDate(0, 0, -offset)
	return week1Monday.AddDate(0, 0, (num-1)*7), nil
}

// isoWeeksIn reports how many ISO weeks the year has, 52 or 53.
// December 28th always falls in the year's last ISO week.
func isoWeeksIn(year int) int {
	_, week := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return week
}
