package event

import (
	"encoding/json"
	"fmt"
)

// Subject is either a live entity reference or a snapshot of an entity that
// no longer exists. Consumers switch on the concrete type.
type Subject interface {
	Type() string
	isSubject()
}

// Scope is the service/area an entity belongs to.
type Scope struct {
	ServiceID string `json:"service_id,omitempty"`
	AreaID    string `json:"area_id,omitempty"`
}

func (s Scope) Empty() bool {
	return s.ServiceID == "" && s.AreaID == ""
}

type LiveSubject struct {
	EntityType string `json:"type"`
	ID         string `json:"id"`
	Scope      Scope  `json:"scope"`
}

func (s LiveSubject) Type() string { return s.EntityType }
func (LiveSubject) isSubject()     {}

// SnapshotSubject carries the last known fields of a deleted entity.
type SnapshotSubject struct {
	EntityType string  `json:"type"`
	Fields     Payload `json:"fields"`
}

func (s SnapshotSubject) Type() string { return s.EntityType }
func (SnapshotSubject) isSubject()     {}

// ScopeOf extracts the service/area scope of a subject.
func ScopeOf(s Subject) Scope {
	switch v := s.(type) {
	case LiveSubject:
		return v.Scope
	case SnapshotSubject:
		return Scope{
			ServiceID: v.Fields.String("service_id"),
			AreaID:    v.Fields.String("area_id"),
		}
	}
	return Scope{}
}

const (
	subjectKindLive     = "live"
	subjectKindSnapshot = "snapshot"
)

type subjectJSON struct {
	Kind       string  `json:"kind"`
	EntityType string  `json:"type"`
	ID         string  `json:"id,omitempty"`
	Scope      *Scope  `json:"scope,omitempty"`
	Fields     Payload `json:"fields,omitempty"`
}

func marshalSubject(s Subject) (json.RawMessage, error) {
	switch v := s.(type) {
	case nil:
		return nil, nil
	case LiveSubject:
		scope := v.Scope
		return json.Marshal(subjectJSON{Kind: subjectKindLive, EntityType: v.EntityType, ID: v.ID, Scope: &scope})
	case SnapshotSubject:
		return json.Marshal(subjectJSON{Kind: subjectKindSnapshot, EntityType: v.EntityType, Fields: v.Fields})
	default:
		return nil, fmt.Errorf("unsupported subject type %T", s)
	}
}

// ParseSubject decodes the JSON form of a subject, discriminated by "kind".
func ParseSubject(data json.RawMessage) (Subject, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var raw subjectJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	switch raw.Kind {
	case subjectKindLive:
		live := LiveSubject{EntityType: raw.EntityType, ID: raw.ID}
		if raw.Scope != nil {
			live.Scope = *raw.Scope
		}
		return live, nil
	case subjectKindSnapshot:
		return SnapshotSubject{EntityType: raw.EntityType, Fields: raw.Fields}, nil
	default:
		return nil, fmt.Errorf("unknown subject kind %q", raw.Kind)
	}
}
