package mutation

import (
	"fmt"

	"github.com/fekuna/omnipos-commerce-service/internal/aggregate"
	"github.com/fekuna/omnipos-commerce-service/internal/mutation/dto"
)

type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateApplied    State = "applied"
	StateRejected   State = "rejected"
)

// Mutation tracks one request through Idle -> Submitting -> Applied|Rejected.
type Mutation struct {
	ID       string
	Request  *dto.Request
	State    State
	Result   *dto.Result
	Snapshot *aggregate.Snapshot
	Err      error
	// FollowUp is the linked sale creation triggered by a delivery.
	FollowUp *Mutation
}

func New(req *dto.Request) *Mutation {
	return &Mutation{ID: req.ID, Request: req, State: StateIdle}
}

var transitions = map[State][]State{
	StateIdle:       {StateSubmitting, StateRejected},
	StateSubmitting: {StateApplied, StateRejected},
}

func (m *Mutation) To(next State) error {
	for _, s := range transitions[m.State] {
		if s == next {
			m.State = next
			return nil
		}
	}
	return fmt.Errorf("mutation %s: illegal transition %s -> %s", m.ID, m.State, next)
}

// Reject moves the mutation to Rejected and records err.
func (m *Mutation) Reject(err error) error {
	if terr := m.To(StateRejected); terr != nil {
		return terr
	}
	m.Err = err
	return err
}

func (m *Mutation) Done() bool {
	return m.State == StateApplied || m.State == StateRejected
}
