//go:build js_eval

package opts

import (
	"strings"
	"testing"
	"time"
)

func TestJSRuleTimeout(t *testing.T) {
	evaluator := NewJSEvaluator(JSWithRuleTimeout(20 * time.Millisecond))

	_, err := evaluator.Evaluate(RuleContext{Option: "ks_iter"}, "(function(){ while (true) {} })()")
	if err == nil {
		t.Fatalf("expected runaway rule to be interrupted")
	}
	if !strings.Contains(err.Error(), "rule exceeded") {
		t.Fatalf("expected timeout in error, got %v", err)
	}

	out, err := evaluator.Evaluate(RuleContext{Values: groupRuleValues()}, "grouped")
	if err != nil {
		t.Fatalf("evaluate after interrupt: %v", err)
	}
	if out != true {
		t.Fatalf("expected true, got %v", out)
	}
}
