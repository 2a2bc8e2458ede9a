package jobs

import (
	"testing"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw     string
		want    Status
		wantErr bool
	}{
		{raw: "queued", want: StatusQueued},
		{raw: "WAITING", want: StatusQueued},
		{raw: " running ", want: StatusStarted},
		{raw: "completed", want: StatusFinished},
		{raw: "errorneous", want: StatusFailed},
		{raw: "cancelled", want: StatusCanceled},
		{raw: "aborted", want: StatusCanceled},
		{raw: "stopped", want: StatusStopped},
		{raw: "deferred", want: StatusDeferred},
		{raw: "exploded", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseStatus(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.raw)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseStatus(%q) = %v, %v; want %v", tt.raw, got, err, tt.want)
			}
		})
	}
}

func TestStatus_Terminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusQueued:    false,
		StatusDeferred:  false,
		StatusScheduled: false,
		StatusStarted:   false,
		StatusFinished:  true,
		StatusFailed:    true,
		StatusCanceled:  true,
		StatusStopped:   true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestDescriptor_IntParam(t *testing.T) {
	d := Descriptor{ID: "c3f1", Params: map[string]any{"project_id": float64(3), "n": 4, "name": "x"}}

	if v, ok := d.IntParam("project_id"); !ok || v != 3 {
		t.Errorf("expected 3 from a JSON number, got %d (%v)", v, ok)
	}
	if v, ok := d.IntParam("n"); !ok || v != 4 {
		t.Errorf("expected 4, got %d (%v)", v, ok)
	}
	if _, ok := d.IntParam("name"); ok {
		t.Error("expected a string param not to convert")
	}
	if !d.Key().Equal(Key("c3f1")) {
		t.Errorf("unexpected key %s", d.Key())
	}
}

func TestRuleSet_Match(t *testing.T) {
	rs, err := NewRuleSet(
		Rule{Name: "aggregate-done", Category: "status-aggregate", Condition: "result.remaining == 0"},
		Rule{Name: "export-done", Category: "export"},
		Rule{Name: "any-failed", Statuses: []Status{StatusFailed, StatusCanceled}},
		Rule{Name: "big-project", Category: "export", Condition: `has(params.project_id) && params.project_id > 10`},
	)
	if err != nil {
		t.Fatalf("NewRuleSet() failed: %v", err)
	}
	if rs.Len() != 4 {
		t.Errorf("expected 4 rules, got %d", rs.Len())
	}

	tests := []struct {
		name string
		d    Descriptor
		want []string
	}{
		{
			name: "remaining left",
			d:    Descriptor{Category: "status-aggregate", Status: StatusFinished, Result: map[string]any{"remaining": 3}},
		},
		{
			name: "remaining zero from JSON",
			d:    Descriptor{Category: "status-aggregate", Status: StatusFinished, Result: map[string]any{"remaining": float64(0)}},
			want: []string{"aggregate-done"},
		},
		{
			name: "export finished",
			d:    Descriptor{Category: "export", Status: StatusFinished},
			want: []string{"export-done"},
		},
		{
			name: "export of big project",
			d:    Descriptor{Category: "export", Status: StatusFinished, Params: map[string]any{"project_id": 12}},
			want: []string{"export-done", "big-project"},
		},
		{
			name: "failed any category",
			d:    Descriptor{Category: "crawler", Status: StatusFailed},
			want: []string{"any-failed"},
		},
		{
			name: "non terminal never matches",
			d:    Descriptor{Category: "export", Status: StatusStarted},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rs.Match(tt.d)
			if err != nil {
				t.Fatalf("Match() failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected rules %v, got %d rules", tt.want, len(got))
			}
			for i, r := range got {
				if r.Name != tt.want[i] {
					t.Errorf("expected rule %s, got %s", tt.want[i], r.Name)
				}
			}
		})
	}
}

func TestRuleSet_EvaluationErrorSkipsRule(t *testing.T) {
	rs := MustRuleSet(
		Rule{Name: "needs-remaining", Condition: "result.remaining == 0"},
		Rule{Name: "always"},
	)

	got, err := rs.Match(Descriptor{Status: StatusFinished})
	if err == nil {
		t.Error("expected an evaluation error for a missing result field")
	}
	if len(got) != 1 || got[0].Name != "always" {
		t.Errorf("expected the other rule to still match, got %+v", got)
	}
}

func TestNewRuleSet_Errors(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{name: "syntax", rule: Rule{Condition: "result.remaining =="}},
		{name: "non boolean", rule: Rule{Condition: "status + category"}},
		{name: "non terminal status", rule: Rule{Statuses: []Status{StatusStarted}}},
		{name: "unknown variable", rule: Rule{Condition: "job.done"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRuleSet(tt.rule); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "default", mutate: func(c *Config) {}},
		{name: "zero interval", mutate: func(c *Config) { c.Interval = 0 }, wantErr: true},
		{name: "retries without backoff", mutate: func(c *Config) { c.TransientRetries = 2; c.RetryBackoff = 0 }, wantErr: true},
		{name: "retries with backoff", mutate: func(c *Config) { c.TransientRetries = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
