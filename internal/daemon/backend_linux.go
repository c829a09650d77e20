//go:build linux

package daemon

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/1broseidon/a11yd/internal/config"
	"github.com/1broseidon/a11yd/internal/platform"
)

func openX11(cfg *config.Config, logger *slog.Logger) (*backend, error) {
	if cfg.X11.Display != "" {
		if err := os.Setenv("DISPLAY", cfg.X11.Display); err != nil {
			return nil, fmt.Errorf("set DISPLAY: %w", err)
		}
	}

	b, err := platform.NewX11BackendFromDisplay(platform.X11Config{
		Classifier: platform.Classifier{
			OverlayClasses:     slices.Clone(cfg.X11.OverlayClasses),
			InputMethodClasses: slices.Clone(cfg.X11.InputMethodClasses),
		},
		CurrentDesktopOnly: cfg.X11.CurrentDesktopOnly,
		Logger:             logger,
	})
	if err != nil {
		return nil, err
	}

	be := &backend{
		wm:    b,
		run:   b.Run,
		close: b.Disconnect,
	}
	if cfg.GestureInjection {
		inj, err := platform.NewX11Injector(b.Connection())
		if err != nil {
			logger.Warn("gesture injection unavailable", "error", err)
		} else {
			be.injector = inj
		}
	}
	return be, nil
}
