package cdpcore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
)

// EvaluateInto runs expression in ctx and JSON-unmarshals the result into
// res "by value," the way the protocol's Runtime.evaluate does when asked
// to return a value rather than a remote object handle. A thrown JS
// exception is surfaced as an error.
func (e *ExecutionContext) EvaluateInto(ctx context.Context, expression string, res interface{}) error {
	if res == nil {
		panic("res cannot be nil")
	}

	params := runtime.Evaluate(expression).WithContextID(e.id).WithReturnByValue(true)
	v, exc, err := params.Do(cdp.WithExecutor(ctx, e.session))
	if err != nil {
		return err
	}
	if exc != nil {
		return exc
	}
	if v.Type == "undefined" {
		return fmt.Errorf("cdpcore: evaluate: encountered an undefined value")
	}
	return json.Unmarshal(v.Value, res)
}

// CallFunctionOnInto calls functionDeclaration with args marshaled
// individually as call arguments, and JSON-unmarshals the by-value result
// into res.
func (e *ExecutionContext) CallFunctionOnInto(ctx context.Context, functionDeclaration string, res interface{}, args ...interface{}) error {
	callArgs, err := marshalCallArguments(args)
	if err != nil {
		return err
	}

	params := runtime.CallFunctionOn(functionDeclaration).
		WithExecutionContextID(e.id).
		WithArguments(callArgs).
		WithReturnByValue(true).
		WithSilent(true)

	v, exc, err := params.Do(cdp.WithExecutor(ctx, e.session))
	if err != nil {
		return err
	}
	if exc != nil {
		return exc
	}
	if res == nil {
		return nil
	}
	return json.Unmarshal(v.Value, res)
}

// marshalCallArguments JSON-encodes each arg as a runtime.CallArgument, in
// order, stopping at the first marshal error.
func marshalCallArguments(args []interface{}) ([]*runtime.CallArgument, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]*runtime.CallArgument, 0, len(args))
	for _, arg := range args {
		b, err := json.Marshal(arg)
		if err != nil {
			return nil, err
		}
		out = append(out, &runtime.CallArgument{Value: b})
	}
	return out, nil
}
