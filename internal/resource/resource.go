// Package resource defines the monitored-resource descriptor that the agent
// maps short-lived identifiers onto.
//
// A Resource is a value type: immutable after construction. New copies the
// label map it is given and accessors never leak the internal map, so a
// Resource can be shared freely across updater goroutines and API server
// workers without synchronization.
package resource

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Resource is a typed descriptor identifying a cloud or runtime entity for
// monitoring and logging correlation, e.g.
//
//	{type: "gce_instance", labels: {instance_id: "123", zone: "us-central1-a"}}
type Resource struct {
	typ    string
	labels map[string]string
}

// New constructs a Resource. The label map is copied; the caller keeps
// ownership of its own map.
func New(typ string, labels map[string]string) Resource {
	return Resource{
		typ:    typ,
		labels: maps.Clone(labels),
	}
}

// Type returns the resource type tag.
func (r Resource) Type() string { return r.typ }

// Label returns the value of a single label, or "" if unset.
func (r Resource) Label(name string) string { return r.labels[name] }

// Labels returns a copy of the label map.
func (r Resource) Labels() map[string]string { return maps.Clone(r.labels) }

// IsZero reports whether r is the zero Resource.
func (r Resource) IsZero() bool { return r.typ == "" && len(r.labels) == 0 }

// Key returns a canonical string form usable as a map key: the type followed
// by the labels in sorted order. Two resources with equal type and labels
// produce equal keys.
func (r Resource) Key() string {
	var b strings.Builder
	b.WriteString(r.typ)
	for _, name := range slices.Sorted(maps.Keys(r.labels)) {
		fmt.Fprintf(&b, "|%s=%s", name, r.labels[name])
	}
	return b.String()
}

// String implements fmt.Stringer. Same shape as Key but readable in logs.
func (r Resource) String() string {
	return fmt.Sprintf("%s{%s}", r.typ, r.labelList())
}

func (r Resource) labelList() string {
	parts := make([]string, 0, len(r.labels))
	for _, name := range slices.Sorted(maps.Keys(r.labels)) {
		parts = append(parts, name+"="+r.labels[name])
	}
	return strings.Join(parts, ",")
}

// resourceJSON is the wire shape served by the local API.
type resourceJSON struct {
	Type   string            `json:"type"`
	Labels map[string]string `json:"labels"`
}

// MarshalJSON implements json.Marshaler.
func (r Resource) MarshalJSON() ([]byte, error) {
	labels := r.labels
	if labels == nil {
		labels = map[string]string{}
	}
	return json.Marshal(resourceJSON{Type: r.typ, Labels: labels})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Resource) UnmarshalJSON(data []byte) error {
	var rj resourceJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return err
	}
	*r = New(rj.Type, rj.Labels)
	return nil
}
