package task

import "testing"

func TestValidate_RequiresNameAndRun(t *testing.T) {
	cases := []struct {
		name string
		task Task
		ok   bool
	}{
		{"valid", Task{Name: "build", Run: "make"}, true},
		{"empty name", Task{Name: "", Run: "make"}, false},
		{"empty run", Task{Name: "build", Run: ""}, false},
		{"bad name chars", Task{Name: "build task", Run: "make"}, false},
		{"name with colon", Task{Name: "ns:build", Run: "make"}, true},
		{"duplicate dep", Task{Name: "build", Run: "make", Deps: []string{"a", "a"}}, false},
		{"negative timeout", Task{Name: "build", Run: "make", TimeoutMs: -1}, false},
		{"negative retries", Task{Name: "build", Run: "make", Retries: -1}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.task.Validate()
			if (err == nil) != c.ok {
				t.Fatalf("Validate() error = %v, want ok=%v", err, c.ok)
			}
		})
	}
}

func boolPtr(b bool) *bool { return &b }

func TestCacheable_DefaultsTrueWhenOutputsPresentAndCacheUnset(t *testing.T) {
	cases := []struct {
		name string
		task Task
		want bool
	}{
		{"unset cache, outputs present", Task{Outputs: []string{"out"}}, true},
		{"unset cache, no outputs", Task{}, false},
		{"explicit true, outputs present", Task{Cache: boolPtr(true), Outputs: []string{"out"}}, true},
		{"explicit false, outputs present", Task{Cache: boolPtr(false), Outputs: []string{"out"}}, false},
		{"explicit true, no outputs", Task{Cache: boolPtr(true)}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.task.Cacheable(); got != c.want {
				t.Fatalf("Cacheable() = %v, want %v", got, c.want)
			}
		})
	}
}
