package cdpcore

import (
	"context"
	"encoding/json"
	"testing"
)

func TestDialogAcceptSendsPromptText(t *testing.T) {
	s, fs := newTestSession()
	d := &Dialog{session: s, kind: "prompt", message: "question?", defaultValue: "yes."}

	if d.Kind() != "prompt" || d.Message() != "question?" || d.DefaultValue() != "yes." {
		t.Fatalf("accessors did not return constructed values")
	}

	if err := d.Accept(context.Background(), "answer!"); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	var params struct {
		Accept     bool   `json:"accept"`
		PromptText string `json:"promptText"`
	}
	if err := json.Unmarshal(fs.paramsAt("Page.handleJavaScriptDialog", 0), &params); err != nil {
		t.Fatalf("decoding params: %v", err)
	}
	if !params.Accept || params.PromptText != "answer!" {
		t.Fatalf("got %+v; want accept=true promptText=answer!", params)
	}
}

func TestDialogDismiss(t *testing.T) {
	s, fs := newTestSession()
	d := &Dialog{session: s, kind: "confirm", message: "sure?"}

	if err := d.Dismiss(context.Background()); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}

	var params struct {
		Accept bool `json:"accept"`
	}
	if err := json.Unmarshal(fs.paramsAt("Page.handleJavaScriptDialog", 0), &params); err != nil {
		t.Fatalf("decoding params: %v", err)
	}
	if params.Accept {
		t.Fatalf("expected accept=false for Dismiss")
	}
}
