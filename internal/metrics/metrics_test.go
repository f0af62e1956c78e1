package metrics

import (
	"strings"
	"testing"
)

func TestNew_GathersMetrics(t *testing.T) {
	m := New()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	// Should include at least Go runtime and process collectors.
	if len(families) == 0 {
		t.Fatal("expected non-empty metric families from Gather()")
	}

	m.RunsTotal.WithLabelValues(OutcomeOK).Inc()
	m.StepDuration.WithLabelValues("token").Observe(0.2)

	families, err = m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	want := map[string]bool{
		"threestep_runs_total":            false,
		"threestep_step_duration_seconds": false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %s in gathered metrics", name)
		}
	}
}

func TestStepDuration_HelpNamesEveryStep(t *testing.T) {
	m := New()
	for _, step := range []string{"token", "original", "result"} {
		m.StepDuration.WithLabelValues(step).Observe(0.1)
	}

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != "threestep_step_duration_seconds" {
			continue
		}
		if got := len(f.GetMetric()); got != 3 {
			t.Errorf("step series = %d, want 3", got)
		}
		for _, step := range []string{"token", "original", "result"} {
			if !strings.Contains(f.GetHelp(), step) {
				t.Errorf("help %q does not mention step %q", f.GetHelp(), step)
			}
		}
		return
	}
	t.Fatal("threestep_step_duration_seconds not gathered")
}

func TestNormalizeMethod(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{"GET", "GET"},
		{"POST", "POST"},
		{"PUT", "PUT"},
		{"DELETE", "DELETE"},
		{"PATCH", "PATCH"},
		{"HEAD", "HEAD"},
		{"OPTIONS", "OPTIONS"},
		{"FOOBAR", "other"},
		{"post", "other"},
		{"", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got := NormalizeMethod(tt.method)
			if got != tt.want {
				t.Errorf("NormalizeMethod(%q) = %q, want %q", tt.method, got, tt.want)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/run", "/api/v1"},
		{"/api/v1", "/api/v1"},
		{"/healthz", "/healthz"},
		{"/status", "/status"},
		{"/metrics", "/metrics"},
		{"/xml/getter.xml", "other"},
		{"/", "other"},
		{"/api/v2/run", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := NormalizePath(tt.path)
			if got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
