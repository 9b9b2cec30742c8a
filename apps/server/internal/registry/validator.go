package registry

import (
	"towerplane/session"
)

// Validator performs the gating checks the orchestrator runs before handing
// control to Session/Engine mutators. It exists separately from those
// aggregates so policy (participant caps, start thresholds) can change
// without touching core invariant enforcement.
type Validator struct {
	cfg Config
}

func NewValidator(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

// EnsurePlayerCanJoin checks capacity and duplicate-join before
// Session.AddParticipant runs.
func (v *Validator) EnsurePlayerCanJoin(sess *session.Session, pid session.PlayerID) error {
	if sess.IsStarted() {
		return ErrAlreadyStarted
	}
	if sess.IsCompleted() {
		return ErrAlreadyCompleted
	}
	for _, p := range sess.Participants() {
		if p == pid {
			return ErrDuplicate
		}
	}
	if len(sess.Participants()) >= sess.MaxPlayers() {
		return ErrCapacity
	}
	return nil
}

// EnsureSessionCanStart checks the participant-count threshold before
// Session.Start runs.
func (v *Validator) EnsureSessionCanStart(sess *session.Session) error {
	if sess.IsStarted() {
		return ErrAlreadyStarted
	}
	if len(sess.Participants()) < v.cfg.MinPlayers {
		return ErrNotEnoughPlayers
	}
	return nil
}

// EnsureAttemptAllowed checks that pid is a participant before
// engine.RegisterAttempt runs.
func (v *Validator) EnsureAttemptAllowed(sess *session.Session, pid session.PlayerID) error {
	for _, p := range sess.Participants() {
		if p == pid {
			return nil
		}
	}
	return ErrNotParticipant
}
