package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/phone-voice-lab/internal/bridge"
	"github.com/phone-voice-lab/internal/config"
	"github.com/phone-voice-lab/internal/logging"
	"github.com/phone-voice-lab/internal/notify"
	"github.com/phone-voice-lab/internal/realtime"
	"github.com/phone-voice-lab/internal/telephony"
)

// The provider connects server-to-server with no browser origin, so the
// origin check is permissive.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	logging.Init()
	defer func() { _ = logging.Sync() }()

	cfg := config.FromEnv()
	if cfg.OpenAIAPIKey == "" {
		logging.Warnw("OPENAI_API_KEY is not set; model connections will be refused upstream")
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.NotifyURL != "" {
		notifier = notify.NewHTTPNotifier(cfg.NotifyURL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logging.Infow("http request", "uri", v.URI, "status", v.Status)
			return nil
		},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	e.GET("/media-stream", handleMediaStream(ctx, cfg, notifier))

	go func() {
		logging.Infow("bridge server listening", "addr", cfg.ListenAddr)
		if err := e.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			logging.Errorw("server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logging.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logging.Warnw("server shutdown", "err", err)
	}
}

// handleMediaStream upgrades the provider connection, dials the model,
// and runs one bridge controller for the life of the call. The root
// context propagates process shutdown into active calls.
func handleMediaStream(root context.Context, cfg config.Config, notifier notify.Notifier) echo.HandlerFunc {
	return func(c echo.Context) error {
		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			logging.Warnw("websocket upgrade failed", "remote", c.Request().RemoteAddr, "err", err)
			return err
		}
		tel := telephony.NewConn(ws)

		dialCtx, cancel := context.WithTimeout(root, 15*time.Second)
		model, err := realtime.Dial(dialCtx, cfg.RealtimeURL, cfg.OpenAIAPIKey)
		cancel()
		if err != nil {
			logging.Errorw("realtime model unavailable", "err", err)
			_ = tel.Close(websocket.CloseInternalServerErr, "model unavailable")
			return nil
		}

		ctrl := bridge.New(tel, model, notifier, bridge.Options{
			Session: realtime.SessionOptions{
				Voice:              cfg.Voice,
				Instructions:       cfg.Instructions,
				Temperature:        cfg.Temperature,
				TranscriptionModel: cfg.TranscriptionModel,
				AudioFormat:        cfg.AudioFormat,
			},
			SettleDelay: cfg.SettleDelay,
		})
		ctrl.Run(root)
		return nil
	}
}
