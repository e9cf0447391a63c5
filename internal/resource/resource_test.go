package resource_test

import (
	"encoding/json"
	"testing"

	"github.com/etsangsplk/metadata-agent/internal/resource"
)

func TestNewCopiesLabels(t *testing.T) {
	labels := map[string]string{"zone": "us-central1-a"}
	res := resource.New("gce_instance", labels)

	labels["zone"] = "mutated"

	if got := res.Label("zone"); got != "us-central1-a" {
		t.Errorf("Label(zone) = %q, want %q", got, "us-central1-a")
	}
}

func TestLabelsReturnsCopy(t *testing.T) {
	res := resource.New("gce_instance", map[string]string{"zone": "us-central1-a"})

	got := res.Labels()
	got["zone"] = "mutated"

	if res.Label("zone") != "us-central1-a" {
		t.Error("mutating the returned label map changed the resource")
	}
}

func TestKeyDeterministic(t *testing.T) {
	a := resource.New("k8s_pod", map[string]string{"pod_name": "web", "namespace_name": "default"})
	b := resource.New("k8s_pod", map[string]string{"namespace_name": "default", "pod_name": "web"})

	if a.Key() != b.Key() {
		t.Errorf("keys differ for equal resources: %q vs %q", a.Key(), b.Key())
	}

	c := resource.New("k8s_pod", map[string]string{"namespace_name": "default", "pod_name": "db"})
	if a.Key() == c.Key() {
		t.Errorf("keys equal for different resources: %q", a.Key())
	}
}

func TestJSONRoundTrip(t *testing.T) {
	orig := resource.New("gce_instance", map[string]string{
		"instance_id": "123",
		"zone":        "us-central1-a",
	})

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var got resource.Resource
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if got.Type() != orig.Type() {
		t.Errorf("Type = %q, want %q", got.Type(), orig.Type())
	}
	if got.Key() != orig.Key() {
		t.Errorf("Key = %q, want %q", got.Key(), orig.Key())
	}
}

func TestMarshalShape(t *testing.T) {
	res := resource.New("gce_instance", map[string]string{"zone": "us-central1-a"})

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := `{"type":"gce_instance","labels":{"zone":"us-central1-a"}}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestMarshalEmptyLabels(t *testing.T) {
	data, err := json.Marshal(resource.New("global", nil))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if want := `{"type":"global","labels":{}}`; string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}
