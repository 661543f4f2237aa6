//go:build !js_eval

package opts

// NewJSEvaluator returns nil in builds without the js_eval tag. The engine
// then registers no `engine: js` evaluator and LoadSchema rejects schemas
// naming it, so no rule reaches evaluation without a runtime.
func NewJSEvaluator(opts ...JSEvaluatorOption) Evaluator {
	_ = applyJSEvaluatorOptions(opts)
	return nil
}

func jsEvaluatorAvailable() bool {
	return false
}
