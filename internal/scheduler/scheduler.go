// Package scheduler holds the pure review-scheduling engine: the
// per-(learner, fact) state machine driven by implicit engagement gestures,
// and the ordering logic that turns review state into a session feed. It has
// no storage or transport concerns; callers persist the snapshots it returns.
package scheduler

import (
	"fmt"
	"time"
)

// Snapshot is the scheduling state of one (learner, fact) pair. Values are
// immutable from the caller's perspective: Apply returns a new Snapshot.
type Snapshot struct {
	Status     Status
	LoopCount  int
	EaseFactor float64
	LastSeenAt time.Time
	NextDueAt  time.Time
}

// Change describes one applied transition, for logs and transition audits.
type Change struct {
	Trigger   Kind
	From      Status
	To        Status
	At        time.Time
	Interval  time.Duration
	NextDueAt time.Time
}

// Scheduler applies gestures to snapshots under one tuning config.
type Scheduler struct {
	cfg Config
}

func NewScheduler(cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{cfg: cfg}, nil
}

func (s *Scheduler) Config() Config { return s.cfg }

// NewSnapshot is the state synthesized on first exposure: due immediately,
// nothing learned yet.
func (s *Scheduler) NewSnapshot(now time.Time) Snapshot {
	return Snapshot{
		Status:     StatusNew,
		LoopCount:  0,
		EaseFactor: s.cfg.EaseStart,
		LastSeenAt: now,
		NextDueAt:  now,
	}
}

// Apply folds one gesture into a snapshot. The gesture's occurredAt drives
// all interval math, so replaying the same events in timestamp order is
// deterministic regardless of arrival order. A gesture older than LastSeenAt
// returns the snapshot unchanged with ErrStaleGesture.
func (s *Scheduler) Apply(snap Snapshot, g Gesture) (Snapshot, Change, error) {
	if err := g.Validate(); err != nil {
		return snap, Change{}, err
	}
	if g.OccurredAt.Before(snap.LastSeenAt) {
		return snap, Change{}, fmt.Errorf("%w: occurred_at %s before last_seen_at %s",
			ErrStaleGesture, g.OccurredAt.Format(time.RFC3339), snap.LastSeenAt.Format(time.RFC3339))
	}

	now := g.OccurredAt
	next := snap
	var interval time.Duration

	base := s.currentInterval(snap)
	if base <= 0 {
		base = s.cfg.FirstInterval.Std()
	}

	switch g.Kind {
	case KindLike:
		switch snap.Status {
		case StatusNew, StatusHard:
			next.Status = StatusLearning
		}
		next.EaseFactor = snap.EaseFactor + s.cfg.LikeEaseBonus
		interval = s.clampInterval(scaleInterval(base, next.EaseFactor))

	case KindSave:
		next.Status = StatusMastered
		interval = scaleInterval(base, s.cfg.SaveMultiplier)
		if interval < s.cfg.MasteredMinInterval.Std() {
			interval = s.cfg.MasteredMinInterval.Std()
		}
		if interval > s.cfg.MaxInterval.Std() {
			interval = s.cfg.MaxInterval.Std()
		}

	case KindLoop:
		if g.LoopCount < s.cfg.LoopThreshold {
			// Below the threshold a loop is engagement, not a signal: note the
			// sighting, keep the schedule (clamped so due never precedes seen).
			next.LoopCount++
			next.LastSeenAt = now
			if next.NextDueAt.Before(now) {
				next.NextDueAt = now
			}
			return next, Change{Trigger: g.Kind, From: snap.Status, To: next.Status, At: now, Interval: next.NextDueAt.Sub(now), NextDueAt: next.NextDueAt}, nil
		}
		if snap.Status == StatusNew {
			next.Status = StatusLearning
		}
		interval = s.clampInterval(scaleInterval(base, s.cfg.LoopShrink))

	case KindSkip:
		switch snap.Status {
		case StatusLearning, StatusMastered:
			next.Status = StatusHard
		}
		next.EaseFactor = snap.EaseFactor - s.cfg.SkipEasePenalty
		if next.EaseFactor < s.cfg.EaseFloor {
			next.EaseFactor = s.cfg.EaseFloor
		}
		interval = s.cfg.SkipInterval.Std()
	}

	if next.Status != snap.Status {
		next.LoopCount = 0
	}
	if g.Kind == KindLoop {
		next.LoopCount++
	}
	next.LastSeenAt = now
	next.NextDueAt = now.Add(interval)

	return next, Change{
		Trigger:   g.Kind,
		From:      snap.Status,
		To:        next.Status,
		At:        now,
		Interval:  interval,
		NextDueAt: next.NextDueAt,
	}, nil
}

// currentInterval is the scheduled gap the snapshot was holding. Zero when no
// interval has been established yet (first exposure), in which case interval
// math starts from FirstInterval.
func (s *Scheduler) currentInterval(snap Snapshot) time.Duration {
	iv := snap.NextDueAt.Sub(snap.LastSeenAt)
	if iv <= 0 {
		return 0
	}
	return iv
}

func scaleInterval(current time.Duration, factor float64) time.Duration {
	return time.Duration(float64(current) * factor)
}

func (s *Scheduler) clampInterval(iv time.Duration) time.Duration {
	if iv <= 0 {
		iv = s.cfg.FirstInterval.Std()
	}
	if iv < s.cfg.MinInterval.Std() {
		iv = s.cfg.MinInterval.Std()
	}
	if iv > s.cfg.MaxInterval.Std() {
		iv = s.cfg.MaxInterval.Std()
	}
	return iv
}
