package nodeexec

import (
	"context"
	"fmt"
	"time"

	"github.com/velora-labs/conversa/engine"
)

// handleSchedule resuelve si el momento actual cae dentro del horario de
// atención configurado y ramifica por los handles dentro/fora.
func (r *Registry) handleSchedule(ctx context.Context, nctx *Context) (engine.Outcome, error) {
	cfg, err := engine.ExtractScheduleConfig(r.resolveConfig(ctx, nctx))
	if err != nil {
		return engine.Outcome{}, err
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		if parsed, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = parsed
		}
	}

	now := r.now().In(loc)
	if withinBusinessHours(now, cfg.Windows) {
		return engine.ContinueBranch(engine.HandleWithinHours), nil
	}
	return engine.ContinueBranch(engine.HandleOutsideHours), nil
}

func withinBusinessHours(now time.Time, windows []engine.BusinessWindow) bool {
	weekday := int(now.Weekday())
	minutes := now.Hour()*60 + now.Minute()

	for _, window := range windows {
		if !containsWeekday(window.Weekdays, weekday) {
			continue
		}
		start, okStart := parseClock(window.Start)
		end, okEnd := parseClock(window.End)
		if !okStart || !okEnd {
			continue
		}
		if minutes >= start && minutes < end {
			return true
		}
	}
	return false
}

func containsWeekday(weekdays []int, day int) bool {
	if len(weekdays) == 0 {
		return true
	}
	for _, wd := range weekdays {
		if wd == day {
			return true
		}
	}
	return false
}

// parseClock convierte "09:30" a minutos desde medianoche
func parseClock(s string) (int, bool) {
	var hour, minute int
	if n, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil || n != 2 {
		return 0, false
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}
