package downloader

import (
	"context"
)

// OfflineCacher is the advisory secondary cache the orchestrator registers
// completed audio URLs with. Failures are logged, never fatal: the binary
// object store is the primary offline source.
//
//go:generate mockgen -source=interfaces.go -destination=mocks/mock_interfaces.go -package=mocks
type OfflineCacher interface {
	CacheAudio(ctx context.Context, url string) error
}
