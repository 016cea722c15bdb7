package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arcrtc/internal/core/domain"
	"arcrtc/internal/core/ports"
	"arcrtc/internal/core/services"
	"arcrtc/internal/infrastructure/keys"
	"arcrtc/internal/infrastructure/monitoring"
	sigws "arcrtc/internal/infrastructure/signal"
	"arcrtc/internal/infrastructure/transport"
	"arcrtc/pkg/config"
	"arcrtc/pkg/logger"
	"arcrtc/pkg/srtp"
	"arcrtc/pkg/tracing"
	"arcrtc/pkg/utils"
)

func main() {
	configPaths := []string{
		"configs/config.yaml",
		"./config.yaml",
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}

	zlog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zlog.Sync()
	slog := zlog.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "arcrtc",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: "production",
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		slog.Fatalw("tracing init failed", "error", err)
	}

	suite, err := srtp.ParseSuite(cfg.Crypto.Suite)
	if err != nil {
		slog.Fatalw("invalid crypto suite", "error", err)
	}

	var collector *monitoring.PrometheusCollector
	if cfg.Monitoring.PrometheusEnabled {
		collector = monitoring.NewPrometheusCollector()
	}

	keyProvider := keys.NewMemoryProvider()

	managerCfg := services.DefaultManagerConfig()
	managerCfg.Jitter.MinDepth = cfg.JitterMinDepth()
	managerCfg.Jitter.MaxDepth = cfg.JitterMaxDepth()
	managerCfg.Jitter.InitialDepth = cfg.JitterInitialDepth()
	managerCfg.Jitter.AdaptInterval = cfg.JitterAdaptInterval()
	managerCfg.PLCAudio.Enabled = cfg.PLC.Enabled
	managerCfg.PLCAudio.FadeOutFrames = cfg.PLC.AudioFadeFrames
	managerCfg.PLCVideo.Enabled = cfg.PLC.Enabled
	managerCfg.PLCVideo.MaxConcealPackets = cfg.PLC.MaxConcealPackets
	managerCfg.Adapt.LossStepDown = cfg.Adapt.LossStepDown
	managerCfg.Adapt.RTTStepDownMS = float64(cfg.Adapt.RTTStepDownMS)
	managerCfg.Adapt.LossStepUp = cfg.Adapt.LossStepUp
	managerCfg.Adapt.RTTStepUpMS = float64(cfg.Adapt.RTTStepUpMS)
	managerCfg.Adapt.MinDwell = cfg.AdaptMinDwell()
	managerCfg.Adapt.EmergencyLoss = cfg.Adapt.EmergencyLoss
	managerCfg.ReplayWindow = cfg.Crypto.ReplayWindowSize
	managerCfg.RotationPackets = cfg.Crypto.KeyRotationPackets
	managerCfg.InboundQueue = cfg.Transport.InboundQueue

	frames := ports.FrameHandler(func(streamID domain.StreamID, payload []byte, concealed bool) {
		// Decoded frames go to the media consumer; the engine binary has
		// none, so delivery ends here.
	})

	var metricsSink ports.MetricsCollector
	if collector != nil {
		metricsSink = collector
	}

	var manager *services.StreamManager
	udp, err := transport.NewUDPSink(cfg.Transport.ListenAddress, cfg.Transport.WriteQueue, func(b []byte, from string) {
		// Unknown SSRCs are expected during stream setup races.
		_ = manager.RouteInbound(b)
	}, slog)
	if err != nil {
		slog.Fatalw("udp bind failed", "error", err)
	}
	manager = services.NewStreamManager(managerCfg, udp, frames, metricsSink, slog)

	signalingCfg := services.DefaultSignalingConfig(domain.PeerID(utils.GeneratePeerID()))
	signalingCfg.HeartbeatInterval = cfg.HeartbeatInterval()
	signalingCfg.TimeoutMultiplier = cfg.Session.HeartbeatTimeoutMultiplier
	signalingCfg.ReplyTimeout = cfg.SignalingReplyTimeout()
	signalingCfg.Suite = suite
	engine := services.NewSignalingEngine(signalingCfg, manager, keyProvider, nil, slog)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if collector != nil {
		go collector.Walk(rootCtx, manager, cfg.CollectInterval())
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
				slog.Errorw("metrics server failed", "error", err)
			}
		}()
	}

	wsServer := sigws.NewServer(func(ch ports.SignalChannel) {
		go func() {
			defer ch.Close()
			if err := engine.Run(rootCtx, ch); err != nil {
				slog.Infow("signaling channel closed", "error", err)
			}
		}()
	}, cfg.SignalWriteTimeout(), slog)

	mux := http.NewServeMux()
	mux.HandleFunc("/signal", wsServer.HandleWebSocket)
	srv := &http.Server{Addr: cfg.Signal.Address, Handler: mux}
	go func() {
		slog.Infow("signaling server listening", "address", cfg.Signal.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Fatalw("signaling server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	slog.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.SignalingReplyTimeout())
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	manager.Close()
	_ = udp.Close()
	_ = tp.Shutdown(shutdownCtx)

	os.Exit(0)
}
