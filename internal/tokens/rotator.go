package tokens

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/presenza-app/backend/config"
	"github.com/presenza-app/backend/internal/models"
	"github.com/presenza-app/backend/pkg/qrimage"
)

// SessionMinter is the slice of the token store the rotator needs.
type SessionMinter interface {
	Create(ctx context.Context, s *models.TokenSession) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// Sweeper runs the retention passes. Invoked once per tick, before minting.
type Sweeper interface {
	Run(ctx context.Context) error
}

// Broadcaster pushes a freshly minted token to connected displays.
type Broadcaster interface {
	BroadcastRotation(s *models.TokenSession, image string)
}

// TokenCache holds the current token for cheap reads.
type TokenCache interface {
	SetCurrent(ctx context.Context, s *models.TokenSession, image string)
}

// Rotator mints a new token session on a fixed cadence. It keeps only a
// transient reference to the previously minted session so it can apply the
// retire-previous policy; the store stays the source of truth for what is
// currently active.
type Rotator struct {
	store    SessionMinter
	sweeper  Sweeper
	renderer qrimage.Renderer
	cache    TokenCache
	hub      Broadcaster
	cfg      config.RotationConfig
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// prevID is scheduler-local state, never read by request handlers.
	prevID *uuid.UUID
}

// NewRotator creates a rotation scheduler. renderer, cache and hub may be nil.
func NewRotator(store SessionMinter, sweeper Sweeper, renderer qrimage.Renderer, cache TokenCache, hub Broadcaster, cfg config.RotationConfig, logger *zap.Logger) *Rotator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rotator{
		store:    store,
		sweeper:  sweeper,
		renderer: renderer,
		cache:    cache,
		hub:      hub,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start launches the rotation loop. Calling Start while the loop is already
// running is a no-op. The first tick runs immediately so a token is available
// as soon as the process is up.
func (r *Rotator) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.run(loopCtx)
	r.logger.Info("rotation scheduler started",
		zap.Duration("interval", r.cfg.Interval),
		zap.Duration("validity", r.cfg.ValidityWindow),
		zap.Bool("retire_previous", r.cfg.RetirePrevious),
	)
}

// Stop cancels the loop and waits for an in-flight tick to finish.
func (r *Rotator) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	r.logger.Info("rotation scheduler stopped")
}

func (r *Rotator) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick performs one rotation. Any failure is logged and swallowed; the loop
// retries on the next tick. A store outage degrades one tick, never the
// scheduler.
func (r *Rotator) tick(ctx context.Context) {
	if r.cfg.RetirePrevious && r.prevID != nil {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
		err := r.store.Deactivate(callCtx, *r.prevID)
		cancel()
		if err != nil {
			r.logger.Warn("retire previous session failed", zap.Error(err), zap.String("session_id", r.prevID.String()))
		}
	}

	if r.sweeper != nil {
		if err := r.sweeper.Run(ctx); err != nil {
			r.logger.Warn("retention sweep failed", zap.Error(err))
		}
	}

	session, image, err := r.mint(ctx)
	if err != nil {
		r.logger.Error("mint session failed", zap.Error(err))
		return
	}

	if r.cache != nil {
		r.cache.SetCurrent(ctx, session, image)
	}
	if r.hub != nil {
		r.hub.BroadcastRotation(session, image)
	}

	id := session.ID
	r.prevID = &id
	r.logger.Debug("token rotated",
		zap.String("session_id", id.String()),
		zap.Time("expires_at", session.ExpiresAt),
	)
}

// mint generates and persists a new session. A render failure is reported but
// does not abort the mint.
func (r *Rotator) mint(ctx context.Context) (*models.TokenSession, string, error) {
	token, err := GenerateToken(r.cfg.TokenLength)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}

	now := time.Now()
	session := &models.TokenSession{
		Token:     token,
		Label:     "Session_" + now.Format("150405"),
		Origin:    models.OriginScheduler,
		Active:    true,
		CreatedAt: now,
		ExpiresAt: now.Add(r.cfg.ValidityWindow),
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()
	if err := r.store.Create(callCtx, session); err != nil {
		return nil, "", fmt.Errorf("store session: %w", err)
	}

	var image string
	if r.renderer != nil {
		image, err = r.renderer.Render(token)
		if err != nil {
			r.logger.Warn("qr render failed, session created without image",
				zap.Error(err), zap.String("session_id", session.ID.String()))
			image = ""
		}
	}
	return session, image, nil
}
