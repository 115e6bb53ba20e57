package dto

import (
	"encoding/json"
	"fmt"

	"github.com/fekuna/omnipos-commerce-service/internal/model"
)

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Request is one mutation as submitted by the form layer.
type Request struct {
	ID      string
	OwnerID string
	Op      Op
	Kind    model.Kind
	// Candidate is the submitted record for create and update.
	Candidate model.Entity
	// Previous holds the prior version for update (one record) and the
	// records being removed for delete.
	Previous []model.Entity
	// Open lists undelivered lines; only read when deleting inventory items.
	Open []model.Line
}

// Result is the record store's authoritative answer.
type Result struct {
	Entities []model.Entity
}

func (r *Request) Validate() error {
	switch r.Kind {
	case model.KindInventoryItem, model.KindClientOrder, model.KindSale,
		model.KindSupplierOrder, model.KindClient, model.KindSupplier:
	default:
		return fmt.Errorf("unknown kind %q", r.Kind)
	}

	switch r.Op {
	case OpCreate:
		if r.Candidate == nil {
			return fmt.Errorf("create requires a candidate")
		}
	case OpUpdate:
		if r.Candidate == nil || len(r.Previous) != 1 {
			return fmt.Errorf("update requires a candidate and its previous version")
		}
		if r.Candidate.EntityID() == "" || r.Candidate.EntityID() != r.Previous[0].EntityID() {
			return fmt.Errorf("update candidate id %q does not match previous %q", r.Candidate.EntityID(), r.Previous[0].EntityID())
		}
	case OpDelete:
		if len(r.Previous) == 0 {
			return fmt.Errorf("delete requires at least one record")
		}
	default:
		return fmt.Errorf("unknown op %q", r.Op)
	}

	for _, e := range r.entities() {
		if e.EntityKind() != r.Kind {
			return fmt.Errorf("record of kind %q in %q request", e.EntityKind(), r.Kind)
		}
	}
	return nil
}

func (r *Request) entities() []model.Entity {
	out := make([]model.Entity, 0, len(r.Previous)+1)
	if r.Candidate != nil {
		out = append(out, r.Candidate)
	}
	return append(out, r.Previous...)
}

// TargetIDs are the record ids this request touches. Creates have none.
func (r *Request) TargetIDs() []string {
	if r.Op == OpCreate {
		return nil
	}
	ids := make([]string, 0, len(r.Previous))
	for _, e := range r.Previous {
		ids = append(ids, e.EntityID())
	}
	return ids
}

// Envelope is the wire form of a Request on the mutation topic.
type Envelope struct {
	MutationID string            `json:"mutation_id"`
	OwnerID    string            `json:"owner_id"`
	Op         Op                `json:"op"`
	Kind       model.Kind        `json:"kind"`
	Candidate  json.RawMessage   `json:"candidate,omitempty"`
	Previous   []json.RawMessage `json:"previous,omitempty"`
	Open       []model.Line      `json:"open,omitempty"`
}

func DecodeEnvelope(b []byte) (*Request, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	req := &Request{
		ID:      env.MutationID,
		OwnerID: env.OwnerID,
		Op:      env.Op,
		Kind:    env.Kind,
		Open:    env.Open,
	}
	if len(env.Candidate) > 0 {
		e, err := decodeEntity(env.Kind, env.Candidate)
		if err != nil {
			return nil, fmt.Errorf("candidate: %w", err)
		}
		req.Candidate = e
	}
	for i, raw := range env.Previous {
		e, err := decodeEntity(env.Kind, raw)
		if err != nil {
			return nil, fmt.Errorf("previous[%d]: %w", i, err)
		}
		req.Previous = append(req.Previous, e)
	}
	return req, nil
}

func decodeEntity(kind model.Kind, raw json.RawMessage) (model.Entity, error) {
	e, err := model.NewEntity(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, e); err != nil {
		return nil, err
	}
	return e, nil
}
