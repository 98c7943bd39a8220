// Command scale-sensor reads a load cell through an ADS1232 converter and
// publishes the weight to MQTT. Tare and calibration can be requested over
// MQTT or HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/scale-sensor/internal/command"
	"github.com/sweeney/scale-sensor/internal/config"
	"github.com/sweeney/scale-sensor/internal/mqtt"
	"github.com/sweeney/scale-sensor/internal/status"
	"github.com/sweeney/scale-sensor/internal/web"
)

// options holds the flags shared by every subcommand.
type options struct {
	configPath string
	broker     string
	httpAddr   string
	sim        bool
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "scale-sensor",
		Short: "Load-cell weight daemon",
		Long: `scale-sensor reads an ADS1232 load-cell converter, tracks tare and stability,
and publishes the weight to MQTT. Without a subcommand it runs the daemon.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runDaemon(cfg, opts.sim)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", config.DefaultPath, "Path to the YAML configuration file")
	pf.StringVar(&opts.broker, "broker", "", "MQTT broker address (overrides config, empty disables)")
	pf.StringVar(&opts.httpAddr, "http", "", "HTTP status address (overrides config, empty disables)")
	pf.BoolVar(&opts.sim, "sim", false, "Run against the simulated converter instead of GPIO")
	pf.BoolVar(&opts.debug, "debug", false, "Verbose logging")

	root.AddCommand(newRunCmd(opts), newRawCmd(opts), newCalibrateCmd(opts))
	return root
}

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the weight daemon (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runDaemon(cfg, opts.sim)
		},
	}
}

// loadConfig reads the config file and applies flags the user set explicitly.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("broker") {
		cfg.MQTT.Broker = opts.broker
	}
	if flags.Changed("http") {
		cfg.HTTP.Addr = opts.httpAddr
	}
	if opts.debug {
		cfg.Log.Debug = true
	}
	if err := cfg.Validate(!opts.sim); err != nil {
		return nil, fmt.Errorf("config %s: %w", opts.configPath, err)
	}
	return cfg, nil
}

func runDaemon(cfg *config.Config, sim bool) error {
	dev, err := openDevice(cfg, sim)
	if err != nil {
		return err
	}
	defer dev.Close()

	boot(dev, cfg)

	queue := command.NewQueue(4)

	// Initialize MQTT
	var publisher mqtt.Publisher = mqtt.Discard{}
	var mqttStatus mqtt.ConnectionStatus = mqtt.Discard{}
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:        cfg.MQTT.Broker,
			ClientID:      cfg.MQTT.ClientID,
			Topics:        cfg.MQTT.Topics,
			BufferSize:    cfg.MQTT.BufferSize,
			Commands:      queue,
			DefaultWeight: cfg.Calibration.Weight,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher, mqttStatus = p, p
	} else {
		log.Printf("mqtt disabled")
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		ReadMs:      cfg.Loop.ReadInterval.Milliseconds(),
		PublishMs:   cfg.Loop.PublishInterval.Milliseconds(),
		HeartbeatMs: cfg.Loop.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
		Simulated:   sim,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	l := &loop{
		engine:     dev.engine,
		clk:        dev.clk,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		light:      dev.light,
		store:      dev.store,
		cfg:        cfg,
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, queue, cfg.Calibration.Weight)
		l.push = srv.PushStatus
		g.Go(func() error {
			log.Printf("http status server listening on %s", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	log.Printf("started: read=%v publish=%v broker=%s heartbeat=%v factor=%.4f",
		cfg.Loop.ReadInterval, cfg.Loop.PublishInterval, cfg.MQTT.Broker, cfg.Loop.Heartbeat, dev.engine.CalFactor())

	ticker := time.NewTicker(cfg.Loop.ReadInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g.Go(func() error {
		defer cancel()
		return runLoop(ctx, l, ticker.C, queue.C(), sigCh)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
