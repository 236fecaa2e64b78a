package cdpcore

import (
	"context"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
)

// ViewportOption refines a SetViewport call beyond width/height.
type ViewportOption func(*emulation.SetDeviceMetricsOverrideParams, *emulation.SetTouchEmulationEnabledParams)

// WithScale sets the device scale factor.
func WithScale(scale float64) ViewportOption {
	return func(p1 *emulation.SetDeviceMetricsOverrideParams, _ *emulation.SetTouchEmulationEnabledParams) {
		p1.DeviceScaleFactor = scale
	}
}

// WithMobile toggles the mobile device viewport flag.
func WithMobile() ViewportOption {
	return func(p1 *emulation.SetDeviceMetricsOverrideParams, _ *emulation.SetTouchEmulationEnabledParams) {
		p1.Mobile = true
	}
}

// WithTouch enables touch emulation alongside the viewport override.
func WithTouch() ViewportOption {
	return func(_ *emulation.SetDeviceMetricsOverrideParams, p2 *emulation.SetTouchEmulationEnabledParams) {
		p2.Enabled = true
	}
}

// SetViewport overrides the page's device viewport, the Chrome DevTools
// Protocol analogue of resizing a browser window. Passing 0, 0 resets to
// the browser's default viewport.
func (p *Page) SetViewport(ctx context.Context, width, height int64, opts ...ViewportOption) error {
	p1 := emulation.SetDeviceMetricsOverride(width, height, 1.0, false)
	p2 := emulation.SetTouchEmulationEnabled(false)
	for _, o := range opts {
		o(p1, p2)
	}
	if err := p1.Do(cdp.WithExecutor(ctx, p.session)); err != nil {
		return err
	}
	return p2.Do(cdp.WithExecutor(ctx, p.session))
}

// DefaultViewport describes the viewport a Browser applies to each page it
// creates, configured via WithDefaultViewport.
type DefaultViewport struct {
	Width, Height int64
}
