package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dispatchvoice/dispatchvoice/internal/dotenv"
	"github.com/dispatchvoice/dispatchvoice/pkg/core/nlu"
	"github.com/dispatchvoice/dispatchvoice/pkg/core/schedule"
	"github.com/dispatchvoice/dispatchvoice/pkg/core/voice/stt"
	"github.com/dispatchvoice/dispatchvoice/pkg/core/voice/tts"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/callcontrol"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/config"
	gatewayserver "github.com/dispatchvoice/dispatchvoice/pkg/gateway/server"
)

type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	newGateway   func(config.Config, gatewayserver.Providers, *slog.Logger) *gatewayserver.Server
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig: config.LoadFromEnv,
		newGateway: gatewayserver.New,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

// buildProviders wires the external collaborators from configuration.
// Transcription and understanding are mandatory; the engine cannot run a
// call without them. Synthesis, calendar, and call control degrade to
// their fallbacks when unconfigured.
func buildProviders(cfg config.Config, logger *slog.Logger) (gatewayserver.Providers, error) {
	if cfg.STTBaseURL == "" {
		return gatewayserver.Providers{}, errors.New("DISPATCH_STT_BASE_URL is required")
	}
	if cfg.NLUBaseURL == "" {
		return gatewayserver.Providers{}, errors.New("DISPATCH_NLU_BASE_URL is required")
	}

	providers := gatewayserver.Providers{
		STT: stt.NewHTTP(cfg.STTBaseURL, cfg.STTAPIKey),
		NLU: nlu.NewHTTP(cfg.NLUBaseURL, cfg.NLUAPIKey),
	}

	if cfg.TTSBaseURL != "" {
		providers.TTS = tts.NewHTTP(cfg.TTSBaseURL, cfg.TTSAPIKey)
	} else {
		logger.Warn("no synthesis endpoint configured, prompts fall back to plain speech frames")
	}

	var cal schedule.Calendar
	if cfg.CalendarBaseURL != "" {
		cal = schedule.NewHTTPCalendar(cfg.CalendarBaseURL, cfg.CalendarAPIKey)
	} else {
		logger.Warn("no calendar endpoint configured, every slot is treated as free")
	}
	providers.Resolver = schedule.NewResolver(cfg.Schedule, cal, logger)

	if cfg.TwilioAccountSID != "" {
		providers.Control = callcontrol.NewTwilio(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TransferNumber, cfg.SMSFromNumber, logger)
	} else {
		logger.Warn("no telephony credentials configured, transfer and hangup actions are logged only")
		providers.Control = callcontrol.NewNoop(logger)
	}

	return providers, nil
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.newGateway == nil {
		return errors.New("missing newGateway dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	providers, err := buildProviders(cfg, logger)
	if err != nil {
		return fmt.Errorf("build providers: %w", err)
	}

	gw := deps.newGateway(cfg, providers, logger)
	httpSrv := gw.HTTPServer()

	logger.Info("starting gateway",
		"addr", cfg.Addr,
		"operator_auth", cfg.OperatorAPIKey != "",
		"call_control", cfg.TwilioAccountSID != "")

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.SetDraining(true)
	if active := gw.Tracker().Count(); active > 0 {
		logger.Warn("draining with live calls", "active_calls", active)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.Tracker().Wait(waitCtx) {
		canceled := gw.Tracker().CancelAll()
		logger.Warn("grace period elapsed, canceling live calls", "canceled", canceled)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "dispatch-gateway: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "dispatch-gateway: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
