// Package app wires configuration, logging, the relay handler and the HTTP
// server into one process.
package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vercelgram/internal/config"
	"vercelgram/internal/relay"
	"vercelgram/internal/server"
	"vercelgram/internal/transport/telegram"
	logx "vercelgram/pkg/logx"
)

// Options locate the config sources. Both paths may be empty.
type Options struct {
	ConfigPath string
	EnvPath    string
}

type App struct {
	cfgm *config.ConfigManager

	log  logx.Logger
	logs *logx.Service
	srv  *server.Server

	mu          sync.Mutex
	lastApplied *config.Config

	cancel context.CancelFunc
	group  *errgroup.Group
	done   chan struct{}
	err    error
}

func New(opts Options) (*App, error) {
	cfgm := config.NewConfigManager(opts.ConfigPath, opts.EnvPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogging(cfg), logSender(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		cfgm: cfgm,
		log:  log,
		logs: logs,
		srv: server.New(server.Config{
			Addr:              cfg.Server.Addr,
			Path:              cfg.Server.Path,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout(),
			MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		}, log.With(logx.String("comp", "http"))),
	}
	a.apply(cfg)
	return a, nil
}

// Logger returns the root logger.
func (a *App) Logger() logx.Logger { return a.log }

// Handler exposes the HTTP routes without binding a listener.
func (a *App) Handler() http.Handler { return a.srv.Handler() }

// apply installs a relay built from cfg and re-applies logging. It never
// touches the listener.
func (a *App) apply(cfg *config.Config) {
	rcfg := relay.Config{
		BotToken: cfg.Telegram.Token,
		ChatID:   cfg.Telegram.ChatID,
		APIBase:  cfg.Telegram.APIBase,
		Timeout:  cfg.TelegramTimeout(),
	}
	if err := rcfg.CheckCredentials(); err != nil {
		a.log.Warn("telegram credentials missing; recognized events will fail until configured",
			logx.Bool("token_set", strings.TrimSpace(rcfg.BotToken) != ""),
			logx.Bool("chat_id_set", strings.TrimSpace(rcfg.ChatID) != ""),
		)
	}

	h := relay.New(rcfg, a.log.With(logx.String("comp", "relay")), relay.WithMaxBodyBytes(cfg.Server.MaxBodyBytes))
	a.srv.SetWebhook(h, cfg.Webhook.Secret)

	a.logs.Apply(mapLogging(cfg))
	a.logs.SetSender(logSender(cfg))

	a.mu.Lock()
	a.lastApplied = cfg
	a.mu.Unlock()
}

// Start runs the HTTP server, the config watcher and the reload loop in the
// background. Done is closed once all of them have returned.
func (a *App) Start(ctx context.Context) error {
	if a.group != nil {
		return errors.New("app already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	a.cancel = cancel
	a.group = g
	a.done = make(chan struct{})

	updates := a.cfgm.Subscribe(1)

	g.Go(func() error { return a.srv.Run(gctx) })
	g.Go(func() error { return a.cfgm.Watch(gctx) })
	g.Go(func() error {
		defer a.cfgm.Unsubscribe(updates)
		a.reloadLoop(gctx, updates)
		return nil
	})

	go func() {
		a.err = g.Wait()
		close(a.done)
	}()

	a.log.Info("app started")
	return nil
}

// Done is closed when every background component has stopped.
func (a *App) Done() <-chan struct{} { return a.done }

// Err returns the first component error, valid after Done is closed.
func (a *App) Err() error { return a.err }

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			if newCfg == nil {
				continue
			}
			a.onReload(newCfg)
		}
	}
}

func (a *App) onReload(newCfg *config.Config) {
	a.mu.Lock()
	prev := a.lastApplied
	a.mu.Unlock()

	sections, attrs := config.SummarizeConfigChange(prev, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if config.RestartRequired(prev, newCfg) {
		a.log.Warn("server config change requires restart",
			logx.String("addr", prev.Server.Addr),
			logx.String("new_addr", newCfg.Server.Addr),
		)
	}
	a.apply(newCfg)

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop cancels the background components and waits for them, bounded by ctx.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.group == nil {
		return a.logs.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.cancel()

	var err error
	select {
	case <-a.done:
		err = a.err
	case <-ctx.Done():
		a.log.Warn("stop deadline reached (continuing)", logx.Err(ctx.Err()))
		err = ctx.Err()
	}

	a.log.Info("stopped")
	_ = a.logs.Close()
	return err
}

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Logging.Telegram.ChatID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// logSender returns the sink transport for the ops chat, or nil without a token.
func logSender(cfg *config.Config) logx.Sender {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return nil
	}
	return telegram.New(telegram.Config{
		Token:   cfg.Telegram.Token,
		APIBase: cfg.Telegram.APIBase,
		Timeout: 10 * time.Second,
	}, logx.Nop())
}
