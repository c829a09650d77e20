//go:build !linux

package daemon

import (
	"errors"
	"log/slog"

	"github.com/1broseidon/a11yd/internal/config"
)

func openX11(*config.Config, *slog.Logger) (*backend, error) {
	return nil, errors.New("the x11 backend is only available on linux; use backend: push")
}
