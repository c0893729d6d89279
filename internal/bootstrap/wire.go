package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"holdscribe/internal/bridge"
	"holdscribe/internal/config"
	"holdscribe/internal/delivery"
	"holdscribe/internal/domain"
	"holdscribe/internal/engine"
	hlog "holdscribe/internal/log"
	"holdscribe/internal/platform"
	"holdscribe/internal/platform/keyhook"
	"holdscribe/internal/platform/window"
	"holdscribe/internal/ports"
	"holdscribe/internal/usecase"
)

// preparer is implemented by pasters that benefit from warming up at startup.
type preparer interface {
	Prepare() error
}

// Services is the assembled runtime graph.
type Services struct {
	Config     config.Config
	Logger     *slog.Logger
	Bridge     *bridge.Bridge
	Controller *usecase.DictationController
	Keys       ports.KeySource

	events ports.EventSink
	paster ports.Paster
}

// Build wires all backend dependencies and binds the loopback listeners. A bind
// failure is returned so the caller can abort before the UI starts.
func Build(cfg config.Config, events ports.EventSink) (*Services, error) {
	logger := hlog.Get()
	clk := clockwork.NewRealClock()

	launcher := engine.NewChromeLauncher(engine.ChromeConfig{
		BrowserPath: cfg.Engine.BrowserPath,
		ProfileDir:  cfg.Engine.ProfileDir,
		ExtraArgs:   cfg.Engine.ExtraArgs,
	}, hlog.WithComponent("engine"))

	br, err := bridge.New(bridge.Config{
		Host:            cfg.Bridge.Host,
		ChannelPort:     cfg.Bridge.ChannelPort,
		BootstrapPort:   cfg.Bridge.BootstrapPort,
		AuthTimeout:     cfg.Bridge.AuthTimeout,
		RelaunchBackoff: cfg.Bridge.RelaunchBackoff,
	}, launcher, clk, hlog.WithComponent("bridge"))
	if err != nil {
		return nil, fmt.Errorf("create bridge: %w", err)
	}
	if err := br.Listen(); err != nil {
		return nil, err
	}

	focus := window.NewTracker()
	paster := platform.NewKeybdPaster()
	injector := delivery.NewInjector(
		platform.NewSystemClipboard(),
		paster,
		focus,
		clk,
		delivery.Delays{
			FocusSettle:    cfg.Delivery.FocusSettle,
			PreWrite:       cfg.Delivery.PreWriteDelay,
			PostWrite:      cfg.Delivery.PostWriteDelay,
			PostPaste:      cfg.Delivery.PostPasteDelay,
			RestoreTimeout: delivery.DefaultDelays().RestoreTimeout,
		},
		hlog.WithComponent("delivery"),
	)

	deps := usecase.Deps{
		Bridge:   br,
		Injector: injector,
		Focus:    focus,
		Events:   events,
		Clock:    clk,
		Logger:   hlog.WithComponent("controller"),
	}
	if cfg.Notify.Enabled {
		deps.Notifier = platform.NewDesktopNotifier()
	}

	controller := usecase.NewDictationController(deps, usecase.Config{
		ModifierKeycodes:    cfg.Gesture.ModifierKeycodes,
		ArmThreshold:        cfg.Gesture.ArmThreshold,
		FinalizeTimeout:     cfg.Session.FinalizeTimeout,
		NotReadyGrace:       cfg.Session.NotReadyGrace,
		ErrorResetDelay:     cfg.Session.ErrorResetDelay,
		EmptyResetDelay:     cfg.Session.EmptyResetDelay,
		TimeoutResetDelay:   cfg.Session.TimeoutResetDelay,
		DeliveredResetDelay: cfg.Session.DeliveredResetDelay,
		StatusLogInterval:   cfg.Session.StatusLogInterval,
		GuardMaxHold:        cfg.Delivery.GuardMaxHold,
	})

	return &Services{
		Config:     cfg,
		Logger:     logger,
		Bridge:     br,
		Controller: controller,
		Keys:       keyhook.New(hlog.WithComponent("keyhook")),
		events:     events,
		paster:     paster,
	}, nil
}

// Run serves the bridge, feeds keys to the controller and starts the engine until
// ctx is cancelled. The engine is killed and the key hook removed on return.
func (s *Services) Run(ctx context.Context) error {
	keys, err := s.Keys.Start(ctx)
	if err != nil {
		s.Bridge.Close()
		return fmt.Errorf("start key hook: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Bridge.Serve(gctx)
	})
	g.Go(func() error {
		return s.Controller.Run(gctx, keys, s.Bridge.Events())
	})
	g.Go(func() error {
		<-gctx.Done()
		s.Keys.Stop()
		return nil
	})
	if p, ok := s.paster.(preparer); ok {
		g.Go(func() error {
			if err := p.Prepare(); err != nil {
				s.Logger.Warn("virtual keyboard unavailable", "error", err)
			}
			return nil
		})
	}
	if s.Config.Engine.Autostart {
		g.Go(func() error {
			if err := s.Bridge.StartEngine(gctx); err != nil {
				s.Logger.Error("engine start failed", "error", err)
				if s.events != nil {
					s.events.SessionError(domain.ErrorCodeEngine, err.Error())
				}
			}
			return nil
		})
	}

	s.Logger.Info("holdscribe running",
		"bootstrap", s.Bridge.BootstrapURL(),
		"autostart", s.Config.Engine.Autostart,
	)
	err = g.Wait()
	s.Bridge.Close()
	return err
}
