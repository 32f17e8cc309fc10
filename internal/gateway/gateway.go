// ABOUTME: Gateway orchestrator wiring config, tools, sessions, and HTTP surfaces.
// ABOUTME: Manages the server lifecycle from startup through graceful shutdown.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/stepfn/tutor-gateway/internal/approval"
	"github.com/stepfn/tutor-gateway/internal/auth"
	"github.com/stepfn/tutor-gateway/internal/config"
	"github.com/stepfn/tutor-gateway/internal/llm"
	"github.com/stepfn/tutor-gateway/internal/mcp"
	"github.com/stepfn/tutor-gateway/internal/session"
	"github.com/stepfn/tutor-gateway/internal/store"
	"github.com/stepfn/tutor-gateway/internal/tools"
	"github.com/stepfn/tutor-gateway/internal/upload"
)

// ServerName and Version identify this gateway in handshakes and health.
const (
	ServerName = "tutor-gateway"
	Version    = "1.0.0"
)

// Gateway orchestrates the tutor-gateway server components.
type Gateway struct {
	config *config.Config
	logger *slog.Logger

	sessions  *session.Registry
	approvals *approval.Gateway
	tools     *tools.Registry
	audit     *store.AuditStore
	relay     *upload.Relay
	mcpServer *mcp.Server

	httpServer *http.Server
}

// New builds a gateway from configuration. Optional components (tutor
// tools, WolframAlpha, uploads, auth) are enabled only when configured;
// each absence is logged once at startup.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	audit, err := store.NewAuditStore(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing audit store: %w", err)
	}

	sessions := session.NewRegistry(session.RegistryConfig{
		Logger:        logger,
		StrictRouting: cfg.MCP.StrictSessionRouting,
	})

	approvals := approval.NewGateway(approval.GatewayConfig{
		Logger:   logger,
		Recorder: audit,
	})

	registry, err := buildToolRegistry(cfg, logger)
	if err != nil {
		audit.Close()
		return nil, err
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Tools:         registry,
		Sessions:      sessions,
		Approvals:     approvals,
		Logger:        logger,
		MessagesPath:  cfg.MCP.MessagesPath,
		ServerName:    ServerName,
		ServerVersion: Version,
		Counter:       audit,
	})
	if err != nil {
		audit.Close()
		return nil, fmt.Errorf("initializing MCP server: %w", err)
	}

	g := &Gateway{
		config:    cfg,
		logger:    logger.With("component", "gateway"),
		sessions:  sessions,
		approvals: approvals,
		tools:     registry,
		audit:     audit,
		mcpServer: mcpServer,
	}

	if cfg.Storage.Endpoint != "" {
		relay, err := upload.NewRelay(upload.Config{
			Endpoint:      cfg.Storage.Endpoint,
			AccessKey:     cfg.Storage.AccessKey,
			SecretKey:     cfg.Storage.SecretKey,
			Bucket:        cfg.Storage.Bucket,
			Region:        cfg.Storage.Region,
			UseSSL:        cfg.Storage.UseSSL,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
			Logger:        logger,
		})
		if err != nil {
			audit.Close()
			return nil, fmt.Errorf("initializing upload relay: %w", err)
		}
		g.relay = relay
	} else {
		logger.Info("storage not configured, upload relay disabled")
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.buildRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// buildToolRegistry registers every tool the configuration enables.
func buildToolRegistry(cfg *config.Config, logger *slog.Logger) (*tools.Registry, error) {
	registry := tools.NewRegistry(logger)

	builtin := []*tools.Tool{
		tools.NewGetFibonacciTool(),
		tools.NewFibonacciSequenceTool(),
	}
	for _, t := range builtin {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("registering builtin tool: %w", err)
		}
	}

	if cfg.OpenAI.APIKey != "" {
		caller := llm.New(llm.Config{
			APIKey:    cfg.OpenAI.APIKey,
			BaseURL:   cfg.OpenAI.BaseURL,
			Model:     cfg.OpenAI.Model,
			MaxTokens: cfg.OpenAI.MaxTokens,
			Logger:    logger,
		})
		tutorTools := []*tools.Tool{
			tools.NewSolveProblemTool(caller),
			tools.NewGenerateProblemsTool(caller),
			tools.NewValidateSolutionTool(caller),
		}
		for _, t := range tutorTools {
			if err := registry.Register(t); err != nil {
				return nil, fmt.Errorf("registering tutor tool: %w", err)
			}
		}
	} else {
		logger.Warn("openai.api_key not set, tutor tools disabled")
	}

	if cfg.Wolfram.AppID != "" {
		if err := registry.Register(tools.NewAskWolframTool(tools.WolframConfig{
			AppID: cfg.Wolfram.AppID,
		})); err != nil {
			return nil, fmt.Errorf("registering wolfram tool: %w", err)
		}
	} else {
		logger.Warn("wolfram.app_id not set, ask_wolfram disabled")
	}

	logger.Info("tool registry built", "tools", registry.Count())
	return registry, nil
}

// buildRoutes assembles the HTTP surface: the MCP transport endpoints plus
// the operator API behind optional JWT auth.
func (g *Gateway) buildRoutes() http.Handler {
	mux := http.NewServeMux()
	g.mcpServer.RegisterRoutes(mux)

	var verifier auth.TokenVerifier
	if g.config.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(g.config.Auth.JWTSecret))
	} else {
		g.logger.Warn("auth.jwt_secret not set, operator API is unauthenticated")
	}
	protect := auth.HTTPAuthMiddleware(verifier, g.logger)

	mux.Handle("/api/approvals", protect(http.HandlerFunc(g.handleApprovals)))
	if g.relay != nil {
		mux.Handle("/api/uploads", protect(g.relay.Handler()))
	}

	return mux
}

// Run serves until ctx is cancelled or the server fails, then shuts down
// gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}

	if g.relay != nil {
		bucketCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := g.relay.EnsureBucket(bucketCtx); err != nil {
			g.logger.Warn("ensuring upload bucket", "error", err)
		}
		cancel()
	}

	g.logger.Info("gateway listening",
		"addr", g.config.Server.HTTPAddr,
		"tools", g.tools.Count())

	errCh := make(chan error, 1)
	go func() {
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shutdownErr := g.Shutdown(shutdownCtx)

	if serveErr != nil {
		return serveErr
	}
	return shutdownErr
}

// Shutdown stops the HTTP server, closes every live session, and releases
// the audit store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down")

	err := g.httpServer.Shutdown(ctx)

	g.sessions.CloseAll()

	if closeErr := g.audit.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
