// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package scheduler plans and fires the random evening check-in
// notifications. A cron entry replans shortly after midnight in the
// configured timezone, and once at startup. Each plan holds 1 to 3
// unique random minute-granularity times inside the 17:00-23:00
// window; the plan is a single owned value and swapping it stops the
// old plan's timers synchronously, so two plans never run at once.
package scheduler

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/saathi-labs/companion-backend/pkg/logging"
	"github.com/saathi-labs/companion-backend/services/backend/observability"
	"github.com/saathi-labs/companion-backend/services/backend/push"
	"github.com/saathi-labs/companion-backend/services/backend/tenant"
)

// Evening window, hours in local tenant time.
const (
	windowStartHour = 17
	windowEndHour   = 23
)

// replanSpec fires at 00:01 local time daily.
const replanSpec = "1 0 * * *"

// Message pools by slot. The hour a timer fires in picks the pool.
var (
	earlyMessages = []string{
		"Hey! How did your classes go today?",
		"Thinking of you. Got a minute to catch up?",
		"How was your day on campus?",
	}
	primeMessages = []string{
		"Dinner time! What did you eat today?",
		"How are you feeling this evening?",
		"Anything on your mind? I am here.",
	}
	lateMessages = []string{
		"Winding down? Tell me one good thing about today.",
		"Don't stay up too late! Want to talk before bed?",
		"Late night thoughts? I am listening.",
	}
)

// Scheduler owns the cron entry and the current day plan.
type Scheduler struct {
	registry *tenant.Registry
	sender   push.Sender
	metrics  *observability.Metrics
	logger   *logging.Logger
	loc      *time.Location

	// now is replaced in tests.
	now func() time.Time

	cron *cron.Cron

	mu   sync.Mutex
	rng  *rand.Rand
	plan *dayPlan
}

// dayPlan is one day's armed timers. times holds the full day's draw;
// armed holds only the times that actually got a timer, which excludes
// times already past when the plan was built. Stopping a plan stops
// every timer before the next plan is armed.
type dayPlan struct {
	times  []time.Time
	armed  []time.Time
	timers []*time.Timer
}

func (p *dayPlan) stop() {
	for _, t := range p.timers {
		t.Stop()
	}
}

// New builds a scheduler. timezone must be an IANA zone name; an
// unknown zone falls back to UTC with a warning.
func New(registry *tenant.Registry, sender push.Sender,
	metrics *observability.Metrics, logger *logging.Logger, timezone string) *Scheduler {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		logger.Warn("unknown timezone, using UTC", "timezone", timezone)
		loc = time.UTC
	}
	return &Scheduler{
		registry: registry,
		sender:   sender,
		metrics:  metrics,
		logger:   logger,
		loc:      loc,
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start arms today's plan and the daily replan cron.
func (s *Scheduler) Start() {
	s.Replan()
	s.cron = cron.New(cron.WithLocation(s.loc))
	s.cron.AddFunc(replanSpec, s.Replan)
	s.cron.Start()
	s.logger.Info("notification scheduler started", "timezone", s.loc.String())
}

// Stop halts the cron and the current plan's timers.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plan != nil {
		s.plan.stop()
		s.plan = nil
	}
}

// Replan builds and arms a fresh day plan. The previous plan's timers
// are stopped before the new ones are created, under the same lock,
// so no timer from a stale plan can fire after Replan returns.
func (s *Scheduler) Replan() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.plan != nil {
		s.plan.stop()
	}

	now := s.now().In(s.loc)
	times := s.planTimesLocked(now)

	plan := &dayPlan{times: times}
	for _, at := range times {
		if !at.After(now) {
			continue
		}
		fireAt := at
		plan.armed = append(plan.armed, at)
		plan.timers = append(plan.timers, time.AfterFunc(at.Sub(now), func() {
			s.fire(fireAt)
		}))
	}
	s.plan = plan

	s.logger.Info("notification plan armed",
		"count", len(times), "armed", len(plan.timers))
}

// PlannedTimes returns the times the current plan actually armed, for
// the test endpoint and the admin dashboard. Times already past when
// the plan was built never got a timer and are not reported.
func (s *Scheduler) PlannedTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plan == nil {
		return nil
	}
	out := make([]time.Time, len(s.plan.armed))
	copy(out, s.plan.armed)
	return out
}

// planTimesLocked picks 1 to 3 unique random minutes inside the
// evening window of now's day, sorted ascending. Caller holds mu.
func (s *Scheduler) planTimesLocked(now time.Time) []time.Time {
	count := 1 + s.rng.Intn(3)
	windowMinutes := (windowEndHour - windowStartHour) * 60

	seen := make(map[int]struct{}, count)
	for len(seen) < count {
		seen[s.rng.Intn(windowMinutes)] = struct{}{}
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(),
		windowStartHour, 0, 0, 0, s.loc)
	times := make([]time.Time, 0, count)
	for offset := range seen {
		times = append(times, dayStart.Add(time.Duration(offset)*time.Minute))
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times
}

// fire sends one check-in to every active device token in every
// tenant. Failures are logged and counted, never retried.
func (s *Scheduler) fire(at time.Time) {
	body := s.pickMessage(at.Hour())
	n := push.Notification{Title: "Saathi", Body: body}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for _, appID := range s.registry.AppIDs() {
		t, err := s.registry.Resolve(ctx, appID)
		if err != nil {
			s.logger.Error("tenant resolve failed during fanout",
				"app_id", appID, "error", err)
			continue
		}
		tokens, err := t.Stores.Tokens.ListActive(ctx)
		if err != nil {
			s.logger.Error("token listing failed", "app_id", appID, "error", err)
			continue
		}
		for _, token := range tokens {
			if err := s.sender.Send(ctx, token.Token, n); err != nil {
				s.metrics.NotificationsSent.WithLabelValues(appID, "error").Inc()
				s.logger.Warn("push failed", "app_id", appID, "error", err)
				continue
			}
			s.metrics.NotificationsSent.WithLabelValues(appID, "ok").Inc()
		}
		s.logger.Info("check-in sent", "app_id", appID, "tokens", len(tokens))
	}
}

// pickMessage selects from the slot pool for the firing hour.
func (s *Scheduler) pickMessage(hour int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pool []string
	switch {
	case hour < 19:
		pool = earlyMessages
	case hour < 21:
		pool = primeMessages
	default:
		pool = lateMessages
	}
	return pool[s.rng.Intn(len(pool))]
}
