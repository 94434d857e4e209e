//go:build !protogen

package policy

import (
	"log/slog"
)

func NewModerationPolicyProvider(_ *slog.Logger, fallbackLimit int, _ string) (Provider, error) {
	return NewStaticProvider(fallbackLimit), nil
}
