package cdpcore

import (
	"context"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
)

// Dialog is a JavaScript dialog (alert, confirm, prompt, or beforeunload)
// raised by the page and currently blocking it. It must be accepted or
// dismissed for the page to continue.
type Dialog struct {
	session *Session

	kind         string
	message      string
	defaultValue string
}

// Kind returns the dialog type: "alert", "confirm", "prompt", or
// "beforeunload".
func (d *Dialog) Kind() string { return d.kind }

// Message returns the dialog's message text.
func (d *Dialog) Message() string { return d.message }

// DefaultValue returns the prompt's default input value, empty for other
// dialog kinds.
func (d *Dialog) DefaultValue() string { return d.defaultValue }

// Accept accepts the dialog. text is used as the prompt's return value
// for Prompt dialogs and ignored otherwise.
func (d *Dialog) Accept(ctx context.Context, text string) error {
	params := page.HandleJavaScriptDialog(true)
	if text != "" {
		params = params.WithPromptText(text)
	}
	return params.Do(cdp.WithExecutor(ctx, d.session))
}

// Dismiss dismisses the dialog (cancel for confirm/prompt, acknowledge for
// alert).
func (d *Dialog) Dismiss(ctx context.Context) error {
	return page.HandleJavaScriptDialog(false).Do(cdp.WithExecutor(ctx, d.session))
}
