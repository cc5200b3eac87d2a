// Package privilege brackets configuration runs with a temporary transfer of
// the pool admin role.
package privilege

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/onboardctl/internal/ledger"
	"github.com/danmuck/onboardctl/internal/observability"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidSession = errors.New("privilege: invalid session")
	ErrElevate        = errors.New("privilege: elevate failed")
	ErrRestore        = errors.New("privilege: restore failed")
)

// Session is the (original, delegate) admin pair of one configuration run.
type Session struct {
	Original common.Address
	Delegate common.Address
}

func (s Session) Validate() error {
	if s.Original == (common.Address{}) {
		return fmt.Errorf("%w: original admin unset", ErrInvalidSession)
	}
	if s.Delegate == (common.Address{}) {
		return fmt.Errorf("%w: delegate admin unset", ErrInvalidSession)
	}
	return nil
}

// DefaultRestoreTimeout bounds the restore transfer once the run context is
// gone.
const DefaultRestoreTimeout = 2 * time.Minute

// Guard is the sole mutator of the admin role. Its mutex makes the
// elevate/restore bracket a critical section across runs sharing the guard.
type Guard struct {
	mu             sync.Mutex
	roles          ledger.RoleAdmin
	waiter         ledger.Waiter
	logger         zerolog.Logger
	restoreTimeout time.Duration
}

type Option func(*Guard)

// WithRestoreTimeout overrides DefaultRestoreTimeout. Non-positive values
// are ignored.
func WithRestoreTimeout(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.restoreTimeout = d
		}
	}
}

func NewGuard(roles ledger.RoleAdmin, waiter ledger.Waiter, logger zerolog.Logger, opts ...Option) *Guard {
	g := &Guard{roles: roles, waiter: waiter, logger: logger, restoreTimeout: DefaultRestoreTimeout}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run hands the admin role to session.Delegate, runs fn, and hands it back
// to session.Original on every exit path: success, error or panic. Once the
// elevation transaction is sent the restore is owed, even when its
// confirmation fails; fn only runs after a confirmed elevation. If sending
// the elevation fails nothing is restored. A restore failure is joined with
// the returned error.
func (g *Guard) Run(ctx context.Context, session Session, fn func(ctx context.Context) error) (err error) {
	if err := session.Validate(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	tx, err := g.send(ctx, "elevate", session.Delegate)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrElevate, err)
	}

	defer func() {
		if restoreErr := g.restore(ctx, session.Original); restoreErr != nil {
			err = errors.Join(err, fmt.Errorf("%w: %w", ErrRestore, restoreErr))
		}
	}()

	if err := g.confirm(ctx, "elevate", tx); err != nil {
		return fmt.Errorf("%w: %w", ErrElevate, err)
	}
	return fn(ctx)
}

// restore runs detached from the run context so a cancelled run still hands
// the role back, bounded by the restore timeout.
func (g *Guard) restore(ctx context.Context, original common.Address) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.restoreTimeout)
	defer cancel()

	tx, err := g.send(ctx, "restore", original)
	if err == nil {
		err = g.confirm(ctx, "restore", tx)
	}
	if err != nil {
		event := g.logger.Error().Err(err).Str("admin", original.Hex())
		if errors.Is(err, context.DeadlineExceeded) {
			event = event.Dur("timeout", g.restoreTimeout)
		}
		event.Msg("pool admin left elevated; restore manually")
	}
	return err
}

func (g *Guard) send(ctx context.Context, direction string, to common.Address) (ledger.Tx, error) {
	g.logger.Info().Str("direction", direction).Str("admin", to.Hex()).Msg("set pool admin")
	tx, err := g.roles.SetPoolAdmin(ctx, to)
	if err != nil {
		observability.RecordRoleTransfer(direction, false)
	}
	return tx, err
}

func (g *Guard) confirm(ctx context.Context, direction string, tx ledger.Tx) error {
	_, err := ledger.Confirm(ctx, g.waiter, tx)
	observability.RecordRoleTransfer(direction, err == nil)
	return err
}
