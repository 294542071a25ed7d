// Package offline implements the single policy point deciding online-versus-
// offline execution for every cache-backed operation.
package offline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/akulinin/pomosync/internal/errs"
)

// Network is the connectivity predicate the runner consults per call.
type Network interface {
	Online() bool
}

// Runner routes operations between their online and offline paths.
type Runner struct {
	net Network
	log *zap.Logger
}

// New constructs a runner. A nil logger disables logging.
func New(net Network, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{net: net, log: log}
}

// Op is one side of an offline-first operation.
type Op[T any] func(ctx context.Context) (T, error)

// Do executes online when connectivity is available, falling back to offline
// on any failure except an authentication failure, which always propagates.
// The offline path must be side-effect-free with respect to the remote store:
// it may only touch the local cache, so falling back never leaves a partial
// remote mutation behind.
func Do[T any](ctx context.Context, r *Runner, online, offline Op[T]) (T, error) {
	if !r.net.Online() {
		r.log.Debug("offline, using local data")
		return offline(ctx)
	}

	out, err := online(ctx)
	if err == nil {
		return out, nil
	}
	if errors.Is(err, errs.ErrUnauthorized) {
		return out, err
	}
	r.log.Warn("online operation failed, falling back to cache", zap.Error(err))
	return offline(ctx)
}
