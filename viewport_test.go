package cdpcore

import (
	"context"
	"encoding/json"
	"testing"
)

func TestSetViewportAppliesOverrides(t *testing.T) {
	s, fs := newTestSession()
	p := &Page{session: s}

	if err := p.SetViewport(context.Background(), 800, 600, WithScale(2), WithMobile(), WithTouch()); err != nil {
		t.Fatalf("SetViewport: %v", err)
	}

	var metrics struct {
		Width             int64   `json:"width"`
		Height            int64   `json:"height"`
		DeviceScaleFactor float64 `json:"deviceScaleFactor"`
		Mobile            bool    `json:"mobile"`
	}
	if err := json.Unmarshal(fs.paramsAt("Emulation.setDeviceMetricsOverride", 0), &metrics); err != nil {
		t.Fatalf("decoding metrics params: %v", err)
	}
	if metrics.Width != 800 || metrics.Height != 600 || metrics.DeviceScaleFactor != 2 || !metrics.Mobile {
		t.Fatalf("got %+v; want 800x600 scale=2 mobile=true", metrics)
	}

	var touch struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.Unmarshal(fs.paramsAt("Emulation.setTouchEmulationEnabled", 0), &touch); err != nil {
		t.Fatalf("decoding touch params: %v", err)
	}
	if !touch.Enabled {
		t.Fatalf("expected touch emulation enabled")
	}
}
