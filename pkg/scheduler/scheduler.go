package scheduler

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"aura/pkg/utils"
)

// FireFunc is invoked when a job comes due. Implementations typically
// announce the job to the chat and re-enter the agent with the prompt.
type FireFunc func(chatID, prompt string)

type job struct {
	id     string
	chatID string
	prompt string
	at     time.Time
	timer  *time.Timer
}

// Scheduler manages one-shot follow-up jobs (reminders, deferred agent
// runs). Jobs live in memory; a restart drops them.
type Scheduler struct {
	mu   sync.Mutex
	jobs map[string]*job
	fire FireFunc
}

// New creates a scheduler delivering due jobs through fire.
func New(fire FireFunc) *Scheduler {
	return &Scheduler{
		jobs: make(map[string]*job),
		fire: fire,
	}
}

// ScheduleOnce registers a job that fires once after delay and returns
// its id.
func (s *Scheduler) ScheduleOnce(chatID, prompt string, delay time.Duration) string {
	id := utils.GenerateID()

	s.mu.Lock()
	defer s.mu.Unlock()

	j := &job{
		id:     id,
		chatID: chatID,
		prompt: prompt,
		at:     time.Now().Add(delay),
	}
	j.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.jobs, id)
		s.mu.Unlock()
		s.fire(chatID, prompt)
	})
	s.jobs[id] = j

	slog.Info("Scheduled job", "id", id, "chat", chatID, "delay", delay)
	return id
}

// Cancel stops a pending job. Reports whether the job existed.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return false
	}
	j.timer.Stop()
	delete(s.jobs, id)
	return true
}

// List returns formatted descriptions of the pending jobs for a chat,
// soonest first.
func (s *Scheduler) List(chatID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*job
	for _, j := range s.jobs {
		if j.chatID == chatID {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].at.Before(due[k].at) })

	entries := make([]string, 0, len(due))
	for _, j := range due {
		entries = append(entries, fmt.Sprintf("%s: '%s' at %s", j.id, j.prompt, j.at.Format("2006-01-02 15:04:05")))
	}
	return entries
}

// Stop cancels every pending job.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, j := range s.jobs {
		j.timer.Stop()
		delete(s.jobs, id)
	}
}
