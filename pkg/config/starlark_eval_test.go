package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestStarlarkEvaluator_Evaluate(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5*time.Second, zerolog.Nop())
	ctx := context.Background()

	tests := []struct {
		name      string
		script    string
		input     map[string]interface{}
		checkFunc func(*testing.T, *StarlarkResult)
		wantErr   bool
	}{
		{
			name:   "simple arithmetic",
			script: "result = 2 + 2\n",
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["result"] != int64(4) {
					t.Errorf("expected result=4, got %v", sr.Output["result"])
				}
			},
		},
		{
			name:   "use input variables",
			script: "doubled = count * 2\n",
			input:  map[string]interface{}{"count": 5},
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["doubled"] != int64(10) {
					t.Errorf("expected doubled=10, got %v", sr.Output["doubled"])
				}
			},
		},
		{
			name: "nested inputs",
			script: `
endpoint = state["fx-resource-bot"]["siteEndpoint"]
plugins = sorted(state.keys())
`,
			input: map[string]interface{}{
				"state": map[string]map[string]interface{}{
					"fx-resource-bot": {"siteEndpoint": "https://bot.azurewebsites.net"},
					"fx-resource-aad-app-for-teams": {"clientId": "c1"},
				},
			},
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["endpoint"] != "https://bot.azurewebsites.net" {
					t.Errorf("unexpected endpoint %v", sr.Output["endpoint"])
				}
				plugins, ok := sr.Output["plugins"].([]interface{})
				if !ok || len(plugins) != 2 || plugins[0] != "fx-resource-aad-app-for-teams" {
					t.Errorf("unexpected plugins %v", sr.Output["plugins"])
				}
			},
		},
		{
			name: "functions and private globals are not returned",
			script: `
def build(name):
    return name + ".zip"

_tmp = 1
artifact = build("api")
`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if _, ok := sr.Output["build"]; ok {
					t.Error("expected function to be excluded")
				}
				if _, ok := sr.Output["_tmp"]; ok {
					t.Error("expected private global to be excluded")
				}
				if sr.Output["artifact"] != "api.zip" {
					t.Errorf("unexpected artifact %v", sr.Output["artifact"])
				}
			},
		},
		{
			name: "struct and json builtins",
			script: `
cfg = struct(name = "api", port = 7071)
encoded = json.encode({"port": cfg.port})
decoded = json.decode('{"ok": true}')
`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				cfg, ok := sr.Output["cfg"].(map[string]interface{})
				if !ok || cfg["name"] != "api" || cfg["port"] != int64(7071) {
					t.Errorf("unexpected cfg %v", sr.Output["cfg"])
				}
				if sr.Output["encoded"] != `{"port":7071}` {
					t.Errorf("unexpected encoded %v", sr.Output["encoded"])
				}
				decoded, ok := sr.Output["decoded"].(map[string]interface{})
				if !ok || decoded["ok"] != true {
					t.Errorf("unexpected decoded %v", sr.Output["decoded"])
				}
			},
		},
		{
			name:   "print is captured",
			script: "print(\"building\", env)\n",
			input:  map[string]interface{}{"env": "dev"},
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if len(sr.Printed) != 1 || sr.Printed[0] != "building dev" {
					t.Errorf("unexpected printed output %v", sr.Printed)
				}
			},
		},
		{
			name:    "syntax error",
			script:  "result = (\n",
			wantErr: true,
		},
		{
			name:    "runtime error",
			script:  "result = 1 // 0\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(ctx, "task.star", tt.script, tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Evaluate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if result != nil && result.Error == "" {
					t.Error("expected error recorded in result")
				}
				return
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, result)
			}
		})
	}
}

func TestStarlarkEvaluator_Timeout(t *testing.T) {
	evaluator := NewStarlarkEvaluator(50*time.Millisecond, zerolog.Nop())

	script := `
def spin():
    n = 0
    for i in range(1000000000):
        n += i
    return n

total = spin()
`
	start := time.Now()
	_, err := evaluator.Evaluate(context.Background(), "spin.star", script, nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "deadline exceeded") {
		t.Errorf("expected deadline error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("expected the script to be cancelled promptly")
	}
}

func TestStarlarkEvaluator_ContextCancel(t *testing.T) {
	evaluator := NewStarlarkEvaluator(time.Minute, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := evaluator.Evaluate(ctx, "cancel.star", "def f():\n    for i in range(1000000000):\n        pass\n\nf()\n", nil)
	if err == nil || !strings.Contains(err.Error(), "canceled") {
		t.Errorf("expected cancellation error, got %v", err)
	}
}

func TestStarlarkEvaluator_UnsupportedInput(t *testing.T) {
	evaluator := NewStarlarkEvaluator(0, zerolog.Nop())
	_, err := evaluator.Evaluate(context.Background(), "x.star", "x = 1\n", map[string]interface{}{
		"ch": make(chan int),
	})
	if err == nil {
		t.Error("expected conversion error for a channel input")
	}
}
