package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/screening/resume-rag/internal/api"
	"github.com/screening/resume-rag/internal/config"
	"github.com/screening/resume-rag/internal/core"
	"github.com/screening/resume-rag/internal/llm"
	"github.com/screening/resume-rag/internal/logger"
	"github.com/screening/resume-rag/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const app = "resume-rag"

// application holds the wired services for one process.
type application struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *store.SQLiteStore
	llm      llm.Client
	sessions *core.SessionService
	chat     *core.ChatService
}

func newApplication(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	client, err := llm.New(ctx, cfg, log)
	if err != nil {
		dbStore.Close()
		return nil, fmt.Errorf("initialize llm client: %w", err)
	}
	log = logger.WithCommonFields(log, client.Provider(), client.ChatModel())

	matcher := core.NewMatcher(client, cfg.CapabilityTimeout, log.Named("matcher"))
	rag := core.NewRAGService(dbStore, client, cfg.CapabilityTimeout, log.Named("rag"))

	return &application{
		cfg:      cfg,
		logger:   log,
		store:    dbStore,
		llm:      client,
		sessions: core.NewSessionService(dbStore, client, matcher, cfg.CapabilityTimeout, log.Named("sessions")),
		chat:     core.NewChatService(dbStore, rag, client, cfg.CapabilityTimeout, log.Named("chat")),
	}, nil
}

func (a *application) Close() {
	if err := a.llm.Close(); err != nil {
		a.logger.Warn("error closing llm client", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("error closing database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func main() {
	root := &cobra.Command{
		Use:           app,
		Short:         "Resume vs job description screening with retrieval-augmented Q&A",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), ingestCmd(), askCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApplication(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			handler := api.NewAPIHandler(a.sessions, a.chat, a.cfg.MaxUploadBytes, a.logger.Named("api"))
			srv := &http.Server{
				Addr:         ":" + a.cfg.HTTPPort,
				Handler:      api.NewRouter(handler),
				ReadTimeout:  30 * time.Second,  // multipart uploads
				WriteTimeout: 180 * time.Second, // ingestion makes several LLM calls
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("starting server", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("listen on %s: %w", srv.Addr, err)
				}
			case <-quit:
			}

			a.logger.Info("shutting down server")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			a.logger.Info("server exited gracefully")
			return nil
		},
	}
}

func ingestCmd() *cobra.Command {
	var resumePath, jdPath string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Analyse a resume against a job description and print the session summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			resume, err := os.ReadFile(resumePath)
			if err != nil {
				return fmt.Errorf("read resume: %w", err)
			}
			jd, err := os.ReadFile(jdPath)
			if err != nil {
				return fmt.Errorf("read job description: %w", err)
			}

			a, err := newApplication(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.sessions.Ingest(cmd.Context(), resume, jd)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}
	cmd.Flags().StringVar(&resumePath, "resume", "", "path to the resume text file")
	cmd.Flags().StringVar(&jdPath, "jd", "", "path to the job description text file")
	_ = cmd.MarkFlagRequired("resume")
	_ = cmd.MarkFlagRequired("jd")
	return cmd
}

func askCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a follow-up question about an ingested session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApplication(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.chat.Answer(cmd.Context(), sessionID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id returned by ingest")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
