package admin

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/noticeboard/internal/platform/requestctx"
	"github.com/louisbranch/noticeboard/internal/platform/timeouts"
	"github.com/louisbranch/noticeboard/internal/services/admin/announce"
	"github.com/louisbranch/noticeboard/internal/services/admin/approval"
	"github.com/louisbranch/noticeboard/internal/services/admin/audit"
	"github.com/louisbranch/noticeboard/internal/services/admin/authz"
	"github.com/louisbranch/noticeboard/internal/services/admin/breakglass"
	"github.com/louisbranch/noticeboard/internal/services/admin/stepup"
	"github.com/louisbranch/noticeboard/internal/services/admin/storage"
	"github.com/louisbranch/noticeboard/internal/services/admin/storage/sqlite"
)

// Config holds the admin server's environment configuration.
type Config struct {
	Addr             string        `env:"NOTICEBOARD_ADMIN_ADDR" envDefault:":8084"`
	DatabasePath     string        `env:"NOTICEBOARD_ADMIN_DB" envDefault:"admin.db"`
	SessionPublicKey string        `env:"NOTICEBOARD_SESSION_PUBLIC_KEY,required"`
	ApprovalExpiry   time.Duration `env:"NOTICEBOARD_APPROVAL_EXPIRY" envDefault:"30m"`
	SweepInterval    time.Duration `env:"NOTICEBOARD_APPROVAL_SWEEP_INTERVAL" envDefault:"1m"`
	StepUpTTL        time.Duration `env:"NOTICEBOARD_STEP_UP_TTL" envDefault:"10m"`

	BreakGlassEnabled   bool `env:"NOTICEBOARD_BREAK_GLASS_ENABLED" envDefault:"true"`
	BreakGlassMinReason int  `env:"NOTICEBOARD_BREAK_GLASS_MIN_REASON" envDefault:"12"`
}

// Server is the admin operator plane.
type Server struct {
	config Config

	store         storage.Store
	approvals     *approval.Service
	policy        approval.Policy
	breakGlass    breakglass.Config
	stepUp        *stepup.Issuer
	stepUpLimiter *attemptLimiter
	audit         *audit.Recorder
	matrix        authz.Matrix
	announcements *announce.Service
	sessions      *sessionVerifier
	csrf          *csrfTokens
	tracer        trace.Tracer
}

// NewServer wires the admin plane over its sqlite store. The credential
// verifier is supplied by the caller; tests inject fakes the same way.
func NewServer(config Config, verifier stepup.CredentialVerifier) (*Server, error) {
	sessions, err := newSessionVerifier(config.SessionPublicKey)
	if err != nil {
		return nil, err
	}
	store, err := sqlite.Open(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open admin store: %w", err)
	}

	breakGlass := breakglass.DefaultConfig()
	breakGlass.Enabled = config.BreakGlassEnabled
	breakGlass.MinReasonLength = config.BreakGlassMinReason

	return &Server{
		config:        config,
		store:         store,
		approvals:     approval.NewService(store, config.ApprovalExpiry),
		policy:        approval.DefaultPolicy(),
		breakGlass:    breakGlass,
		stepUp:        stepup.NewIssuer(verifier, config.StepUpTTL),
		stepUpLimiter: newAttemptLimiter(),
		audit:         audit.NewRecorder(store),
		matrix:        authz.DefaultMatrix(),
		announcements: announce.NewService(),
		sessions:      sessions,
		csrf:          newCsrfTokens(),
		tracer:        otel.Tracer("noticeboard/admin"),
	}, nil
}

// Announcements exposes the mutation target for seeding at startup.
func (s *Server) Announcements() *announce.Service {
	return s.announcements
}

// Close releases the server's storage.
func (s *Server) Close() error {
	return s.store.Close()
}

// Run serves until ctx is cancelled, then shuts down gracefully. A background
// ticker sweeps expired approvals; decisions re-check expiry regardless.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	go s.sweepLoop(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("admin: shutdown: %v", err)
		}
	}()

	log.Printf("admin: listening on %s", s.config.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) sweepLoop(ctx context.Context) {
	interval := s.config.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := s.approvals.Sweep(ctx)
			if err != nil {
				log.Printf("admin: approval sweep: %v", err)
				continue
			}
			if swept > 0 {
				log.Printf("admin: expired %d stale approval requests", swept)
			}
		}
	}
}

// identityFrom reads the authenticated operator installed by requireSession.
func identityFrom(r *http.Request) (requestctx.Identity, bool) {
	return requestctx.IdentityFromContext(r.Context())
}
