package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aura/pkg/tools"

	jsoniter "github.com/json-iterator/go"
)

// jobScheduler is the slice of the scheduler the reminder tools need.
// Satisfied by *scheduler.Scheduler, injected under the reserved
// "scheduler" context key.
type jobScheduler interface {
	ScheduleOnce(chatID, prompt string, delay time.Duration) string
	Cancel(id string) bool
	List(chatID string) []string
}

// RemindersModule lets the model set and manage one-shot reminders.
type RemindersModule struct{}

func (m *RemindersModule) Name() string { return "reminders" }

func (m *RemindersModule) Register(reg *tools.Registry, cfg jsoniter.RawMessage) error {
	reg.Register(tools.Spec{
		Name:            "set_reminder",
		Description:     "Sets a one-time reminder. Arguments: seconds (integer), message (string).",
		RequiresContext: true,
		Params: []tools.Param{
			{Name: "seconds", Type: "integer", Required: true},
			{Name: "message", Type: "string", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			sched, chatID, err := schedulerFromArgs(args)
			if err != nil {
				return "", err
			}

			seconds := intArg(args, "seconds")
			message, _ := args["message"].(string)
			if seconds <= 0 || message == "" {
				return "", fmt.Errorf("both 'seconds' and 'message' are required")
			}

			sched.ScheduleOnce(chatID, message, time.Duration(seconds)*time.Second)
			return fmt.Sprintf("Reminder set for %d seconds from now.", seconds), nil
		},
	})

	reg.Register(tools.Spec{
		Name:            "list_reminders",
		Description:     "Lists pending reminders for this chat.",
		RequiresContext: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			sched, chatID, err := schedulerFromArgs(args)
			if err != nil {
				return "", err
			}

			entries := sched.List(chatID)
			if len(entries) == 0 {
				return "No pending reminders.", nil
			}
			return strings.Join(entries, "\n"), nil
		},
	})

	reg.Register(tools.Spec{
		Name:            "cancel_reminder",
		Description:     "Cancels a pending reminder by its job id. Arguments: job_id (string).",
		RequiresContext: true,
		Params: []tools.Param{
			{Name: "job_id", Type: "string", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			sched, _, err := schedulerFromArgs(args)
			if err != nil {
				return "", err
			}

			jobID, _ := args["job_id"].(string)
			if jobID == "" {
				return "", fmt.Errorf("missing 'job_id' argument")
			}
			if !sched.Cancel(jobID) {
				return fmt.Sprintf("No reminder with id %s.", jobID), nil
			}
			return "Reminder cancelled.", nil
		},
	})

	return nil
}

func schedulerFromArgs(args map[string]any) (jobScheduler, string, error) {
	sched, ok := args[tools.CtxScheduler].(jobScheduler)
	if !ok {
		return nil, "", fmt.Errorf("scheduler missing from context")
	}
	chatID := fmt.Sprintf("%v", args[tools.CtxChatID])
	if chatID == "" || chatID == "<nil>" {
		return nil, "", fmt.Errorf("chat id missing from context")
	}
	return sched, chatID, nil
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case jsoniter.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}
