package builtin

import (
	"context"
	"fmt"
	"time"

	"aura/pkg/tools"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ClockModule exposes the current date and time to the model.
// The manifest may pin a fixed UTC offset for users living in one zone.
type ClockModule struct{}

func (m *ClockModule) Name() string { return "clock" }

func (m *ClockModule) Register(reg *tools.Registry, cfg jsoniter.RawMessage) error {
	var manifest struct {
		UTCOffsetHours *int   `json:"utc_offset_hours"`
		Location       string `json:"location"`
	}
	if cfg != nil {
		if err := json.Unmarshal(cfg, &manifest); err != nil {
			return fmt.Errorf("invalid clock manifest: %w", err)
		}
	}

	loc := time.Local
	if manifest.UTCOffsetHours != nil {
		name := fmt.Sprintf("UTC%+d", *manifest.UTCOffsetHours)
		loc = time.FixedZone(name, *manifest.UTCOffsetHours*3600)
	} else if manifest.Location != "" {
		if l, err := time.LoadLocation(manifest.Location); err == nil {
			loc = l
		}
	}

	reg.Register(tools.Spec{
		Name:        "current_time",
		Description: "Returns the current date, time and day of week.",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			now := time.Now().In(loc)
			working := now.Weekday() != time.Saturday && now.Weekday() != time.Sunday
			return fmt.Sprintf("Date: %s\nTime: %s\nDay of week: %s\nWorking day: %t\nTimezone: %s",
				now.Format("2006-01-02"),
				now.Format("15:04:05"),
				now.Weekday(),
				working,
				now.Format("MST"),
			), nil
		},
	})

	return nil
}
