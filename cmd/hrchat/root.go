package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/fwojciec/hrchat"
	"github.com/fwojciec/hrchat/api"
	bt "github.com/fwojciec/hrchat/bubbletea"
	"github.com/fwojciec/hrchat/chat"
	"github.com/fwojciec/hrchat/inmem"
	hrjson "github.com/fwojciec/hrchat/json"
	"github.com/fwojciec/hrchat/sse"
	"github.com/fwojciec/hrchat/stub"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:           "hrchat",
		Short:         "Terminal client for the HR chatbot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	bindFlags(root, v)

	root.AddCommand(
		&cobra.Command{
			Use:   "chat",
			Short: "Open the interactive chat",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig(v)
				if err != nil {
					return err
				}
				return runChat(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "send MESSAGE",
			Short: "Send one message and stream the reply to stdout",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(v)
				if err != nil {
					return err
				}
				return runSend(cmd.Context(), cfg, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
			},
		},
		&cobra.Command{
			Use:   "stub",
			Short: "Serve a local stub backend",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig(v)
				if err != nil {
					return err
				}
				return runStub(cmd.Context(), cfg, cmd.ErrOrStderr())
			},
		},
	)
	return root
}

// app holds the collaborators one streaming session needs.
type app struct {
	cfg      config
	client   *api.Client
	store    *inmem.StreamStore
	messages *inmem.MessageList
	sessions *inmem.SessionList
	loop     *chat.Loop
}

func newApp(cfg config, logger *slog.Logger) *app {
	a := &app{
		cfg:      cfg,
		client:   api.New(cfg.BaseURL, api.WithToken(cfg.Token)),
		store:    inmem.NewStreamStore(),
		messages: inmem.NewMessageList(),
		sessions: inmem.NewSessionList(),
	}
	var decOpts []sse.Option
	if cfg.LooseJSON {
		decOpts = append(decOpts, sse.WithLooseJSON())
	}
	a.loop = chat.New(a.client, a.store, a.messages, a.sessions,
		chat.WithDecoder(sse.NewDecoder(decOpts...)),
		chat.WithIdleTimeout(cfg.IdleTimeout),
		chat.WithLogger(logger),
	)
	return a
}

// openSession resumes the transcript, continues the configured session or
// creates a new one on the backend, in that order of preference.
func (a *app) openSession(ctx context.Context) (hrchat.ChatSession, error) {
	if a.cfg.Transcript != "" {
		tr, err := hrjson.Load(a.cfg.Transcript)
		switch {
		case err == nil:
			a.sessions.CreateSession(tr.Session)
			a.messages.Load(tr.Session.ID, tr.Messages)
			return tr.Session, nil
		case !errors.Is(err, os.ErrNotExist):
			return hrchat.ChatSession{}, fmt.Errorf("load transcript: %w", err)
		}
	}

	now := time.Now()
	s := hrchat.ChatSession{ID: a.cfg.Session, AgentID: a.cfg.Agent, CreatedAt: now, UpdatedAt: now}
	if s.ID == "" {
		id, err := a.client.CreateChatSession(ctx, a.cfg.Agent, "")
		if err != nil {
			return hrchat.ChatSession{}, fmt.Errorf("create session: %w", err)
		}
		s.ID = id
	}
	a.sessions.CreateSession(s)
	return s, nil
}

func (a *app) transcript(sessionID string) (hrchat.Transcript, error) {
	s, err := a.sessions.Session(sessionID)
	if err != nil {
		return hrchat.Transcript{}, err
	}
	return hrchat.Transcript{Session: s, Messages: a.messages.Messages(sessionID)}, nil
}

func (a *app) save(sessionID string) error {
	if a.cfg.Transcript == "" {
		return nil
	}
	tr, err := a.transcript(sessionID)
	if err != nil {
		return err
	}
	if err := hrjson.Save(a.cfg.Transcript, tr); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

func runChat(ctx context.Context, cfg config) error {
	// The TUI owns the terminal, so logs are dropped unless debugging.
	logger := slog.New(slog.DiscardHandler)
	if cfg.LogLevel == "debug" {
		f, err := os.OpenFile("hrchat.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		if logger, err = newLogger(f, cfg.LogLevel); err != nil {
			return err
		}
	}

	a := newApp(cfg, logger)
	session, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	tr, err := a.transcript(session.ID)
	if err != nil {
		return err
	}

	send := func(ctx context.Context, req hrchat.SendMessageRequest, onEvent func(hrchat.Event)) error {
		err := a.loop.Stream(ctx, req, onEvent)
		if serr := a.save(req.ChatSessionID); serr != nil {
			logger.Error("autosave failed", "error", serr)
		}
		return err
	}
	if err := bt.Run(ctx, bt.New(send, a.store, tr, hrchat.DefaultTheme(), bt.WithMessages(a.messages))); err != nil {
		return fmt.Errorf("TUI: %w", err)
	}
	return a.save(session.ID)
}

func runSend(ctx context.Context, cfg config, message string, stdout, stderr io.Writer) error {
	logger, err := newLogger(stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	a := newApp(cfg, logger)
	session, err := a.openSession(ctx)
	if err != nil {
		return err
	}

	req := hrchat.SendMessageRequest{
		ChatSessionID: session.ID,
		Message:       message,
		AgentID:       session.AgentID,
	}
	if msgs := a.messages.Messages(session.ID); len(msgs) > 0 {
		last := msgs[len(msgs)-1].ID
		req.ParentMessageID = &last
	}

	var writeErr error
	err = a.loop.Stream(ctx, req, func(evt hrchat.Event) {
		if d, ok := evt.(hrchat.EventDelta); ok && writeErr == nil {
			_, writeErr = io.WriteString(stdout, bt.Sanitize(d.Text))
		}
	})
	fmt.Fprintln(stdout)
	if serr := a.save(session.ID); serr != nil && err == nil {
		err = serr
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(stderr, "interrupted")
		return nil
	}
	if err != nil {
		return err
	}
	return writeErr
}

func runStub(ctx context.Context, cfg config, stderr io.Writer) error {
	logger, err := newLogger(stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	var opts []stub.Option
	if cfg.LooseJSON {
		opts = append(opts, stub.WithLooseDialect())
	}
	if cfg.Token != "" {
		opts = append(opts, stub.WithToken(cfg.Token))
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           stub.New(opts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("stub backend listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		logger.Info("stub backend shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
