package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LeonardoBeccarini/agrispray/internal/services/detection"
	"github.com/LeonardoBeccarini/agrispray/internal/services/event"
	"github.com/LeonardoBeccarini/agrispray/internal/services/persistence"
	"github.com/LeonardoBeccarini/agrispray/pkg/dedup"
	"github.com/LeonardoBeccarini/agrispray/pkg/rabbitmq"
)

var (
	verbose bool
	envFile string
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "agrispray",
	Short: "Leaf infection detection and spray dispatch",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the MQTT signal consumer and the gRPC health endpoint",
	RunE:  runServe,
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Classify one detect request and print the resulting record and payload",
	Long: `Runs a detect request through the rules engine with in-memory storage
and no dispatch. The request is read from --file, or stdin when the file is "-".`,
	RunE: runEvaluate,
}

var evaluateFile string

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	evaluateCmd.Flags().StringVarP(&evaluateFile, "file", "f", "-", "detect request JSON")
	rootCmd.AddCommand(serveCmd, evaluateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig(envFile)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close(logger)

	reg := newRegistry()
	deps := detection.Deps{
		Engine:   st.engine,
		IDs:      st.ids,
		Images:   st.images,
		Store:    st.store,
		Safety:   buildSafety(cfg, st.store, logger),
		Sprays:   st.store,
		Provider: st.provider,
		Metrics:  detection.NewMetrics(reg),
		Logger:   logger,
	}
	var checks detection.Checks

	// ---- MQTT ----
	var mqttClient mqtt.Client
	if cfg.MQTTEnabled {
		// outlives the signal so in-flight dispatches can finish during shutdown
		connCtx, cancelConn := context.WithCancel(context.WithoutCancel(ctx))
		defer cancelConn()
		client, err := rabbitmq.NewRabbitMQConn(connCtx, &cfg.Rabbit, logger)
		if err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		defer rabbitmq.CloseRabbitMQConn(client, logger)
		deps.Publisher = rabbitmq.NewSprayPublisher(client, cfg.SprayTemplate)
		checks = append(checks, detection.Check{Name: "mqtt", Ready: client.IsConnectionOpen})
		mqttClient = client
	} else {
		logger.Warn("RABBITMQ_ENABLED=false, sprayer commands are not published")
	}

	// ---- Influx ----
	var writer *event.Writer
	var influx influxdb2.Client
	if cfg.InfluxURL != "" {
		influx = influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
		defer influx.Close()
		writer = event.NewWriter(influx.WriteAPI(cfg.InfluxOrg, cfg.InfluxBucket), logger)
		defer writer.Close()
		deps.Events = writer
		reg.MustRegister(writer.Collectors()...)
		checks = append(checks, detection.Check{Name: "influx", Ready: func() bool {
			return writer.LastErrorAge() > 30*time.Second
		}})
	}

	svc, err := detection.NewService(detection.Config{
		UpstreamTimeout: cfg.UpstreamTimeout,
		CommandTTL:      cfg.CommandTTL,
		ModelVersion:    cfg.ModelVersion,
	}, deps)
	if err != nil {
		return err
	}
	defer svc.Close()

	if mqttClient != nil {
		seen := dedup.New(10*time.Minute, 10000)
		deps.Metrics.WatchDedup("signal", seen)
		h := detection.NewSignalHandler(svc, seen, logger, 2*cfg.UpstreamTimeout)
		consumer := rabbitmq.NewConsumer(mqttClient, cfg.SignalTopic, 1, h.Handle, logger)
		go func() {
			if err := consumer.ConsumeMessage(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("mqtt consumer stopped", zap.Error(err))
			}
		}()
	}

	// ---- HTTP ----
	mux := detection.NewHTTPMux(svc, logger)
	mux.Handle("GET /healthz", checks.HealthHandler())
	mux.Handle("GET /readyz", checks.ReadyHandler())
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	if influx != nil {
		mux.Handle("GET /events/detections/latest", event.NewLatestHandler(influx, cfg.InfluxOrg, cfg.InfluxBucket, logger))
	}
	mountImages(mux, st.imagesHTTP)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	// ---- gRPC health ----
	lis, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	go trackHealth(ctx, hs, checks)
	go func() {
		logger.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc serve error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	hs.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	return nil
}

// trackHealth mirrors the checks into the gRPC health service.
func trackHealth(ctx context.Context, hs *health.Server, checks detection.Checks) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		status := healthpb.HealthCheckResponse_SERVING
		if !checks.Ready() {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", status)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig(envFile)
	engine, ids, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if evaluateFile != "-" {
		f, err := os.Open(evaluateFile)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	var req detection.DetectRequest
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}

	store := persistence.NewMemoryStore()
	svc, err := detection.NewService(detection.Config{
		CommandTTL:   cfg.CommandTTL,
		ModelVersion: cfg.ModelVersion,
	}, detection.Deps{
		Engine: engine,
		IDs:    ids,
		Images: persistence.NewMemoryBlobs(""),
		Store:  store,
		Sprays: store,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.Process(cmd.Context(), req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(detection.NewDetectResponse(res))
}
