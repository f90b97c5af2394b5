package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/agrispray/internal/services/detection"
	"github.com/LeonardoBeccarini/agrispray/internal/services/inference"
	"github.com/LeonardoBeccarini/agrispray/internal/services/persistence"
	"github.com/LeonardoBeccarini/agrispray/internal/services/safety"
)

// recordStore is what every store backend provides.
type recordStore interface {
	detection.DetectionStore
	detection.SprayRecorder
	safety.History
}

// imageServer is a blob store that can serve its own images.
type imageServer interface {
	BaseURL() string
	Handler() http.Handler
}

// stack is the set of opened collaborators; close releases them in reverse order.
type stack struct {
	store      recordStore
	images     detection.ImageStore
	imagesHTTP imageServer
	engine     detection.Engine
	ids        detection.IDGenerator
	provider   detection.SignalProvider
	closers    []func() error
}

func (s *stack) close(logger *zap.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warn("shutdown: close failed", zap.Error(err))
		}
	}
}

func buildEngine(cfg Config, logger *zap.Logger) (detection.Engine, detection.IDGenerator, error) {
	policy, err := detection.ParseUnknownProfilePolicy(cfg.ProfilePolicy)
	if err != nil {
		return detection.Engine{}, nil, err
	}
	var profiles map[string]detection.Profile
	if cfg.ProfilesPath != "" {
		profiles, err = detection.LoadProfiles(cfg.ProfilesPath)
		if err != nil {
			return detection.Engine{}, nil, fmt.Errorf("load profiles: %w", err)
		}
	}
	planner := detection.NewPlanner(profiles, policy)
	logger.Info("pesticide profiles loaded", zap.Strings("profiles", planner.ProfileIDs()), zap.String("policy", string(policy)))

	ids, err := detection.ParseIDMode(cfg.IDMode)
	if err != nil {
		return detection.Engine{}, nil, err
	}
	engine := detection.NewEngine(planner, detection.ReferenceAreaEstimator{ReferenceAreaSqm: cfg.ReferenceArea})
	return engine, ids, nil
}

func openStack(ctx context.Context, cfg Config, logger *zap.Logger) (*stack, error) {
	s := &stack{}
	var err error
	if s.engine, s.ids, err = buildEngine(cfg, logger); err != nil {
		return nil, err
	}

	var mongoStore *persistence.MongoStore
	openMongo := func() (*persistence.MongoStore, error) {
		if mongoStore != nil {
			return mongoStore, nil
		}
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		m, err := persistence.NewMongoStore(cctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		mongoStore = m
		s.closers = append(s.closers, m.Close)
		return m, nil
	}

	switch cfg.StoreBackend {
	case "memory", "":
		s.store = persistence.NewMemoryStore()
	case "sqlite":
		sq, err := persistence.NewSQLiteStore(cfg.SQLiteDSN)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, sq.Close)
		s.store = sq
	case "mongo":
		m, err := openMongo()
		if err != nil {
			s.close(logger)
			return nil, err
		}
		s.store = m
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	logger.Info("detection store ready", zap.String("backend", cfg.StoreBackend))

	switch cfg.BlobBackend {
	case "memory", "":
		mem := persistence.NewMemoryBlobs(cfg.BlobBaseURL)
		s.images, s.imagesHTTP = mem, mem
	case "fs":
		fs, err := persistence.NewFSBlobs(cfg.BlobDir, cfg.BlobBaseURL)
		if err != nil {
			s.close(logger)
			return nil, err
		}
		s.images, s.imagesHTTP = fs, fs
	case "gridfs":
		m, err := openMongo()
		if err != nil {
			s.close(logger)
			return nil, err
		}
		g, err := persistence.NewGridFSBlobs(m.Database(), cfg.BlobBaseURL)
		if err != nil {
			s.close(logger)
			return nil, err
		}
		s.images = g
	default:
		s.close(logger)
		return nil, fmt.Errorf("unknown BLOB_BACKEND %q", cfg.BlobBackend)
	}

	if s.provider, err = buildProvider(ctx, cfg); err != nil {
		s.close(logger)
		return nil, err
	}
	return s, nil
}

func buildProvider(ctx context.Context, cfg Config) (detection.SignalProvider, error) {
	switch cfg.SignalProvider {
	case "none", "":
		return nil, nil
	case "static":
		// inconclusive scores: records are kept, nothing is sprayed
		return inference.StaticProvider{Scores: detection.RawScores{PresenceConfidence: 0.5, SeverityConfidence: 0.5, DiseaseTag: "unknown"}}, nil
	case "http":
		return inference.NewHTTPProvider(cfg.InferenceURL, 2*cfg.UpstreamTimeout, nil), nil
	case "gemini":
		g, err := inference.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		return g, nil
	}
	return nil, fmt.Errorf("unknown SIGNAL_PROVIDER %q", cfg.SignalProvider)
}

func buildSafety(cfg Config, history safety.History, logger *zap.Logger) *safety.Checker {
	var weather safety.Weather = safety.StaticWeather{Safe: true}
	if cfg.OWMAPIKey != "" {
		owm := safety.NewOWMWeather(cfg.OWMAPIKey, cfg.UpstreamTimeout)
		owm.MaxWindMS, owm.MaxRainMM = cfg.MaxWindMS, cfg.MaxRainMM
		weather = owm
	} else {
		logger.Warn("OWM_API_KEY not set, weather check always passes")
	}
	return &safety.Checker{Weather: weather, History: history, Avoidance: cfg.SprayAvoidance}
}

// mountImages serves stored images when their base URL is a local path.
func mountImages(mux *http.ServeMux, images imageServer) {
	if images == nil {
		return
	}
	prefix := images.BaseURL()
	if !strings.HasPrefix(prefix, "/") {
		return
	}
	prefix = strings.TrimRight(prefix, "/") + "/"
	mux.Handle("GET "+prefix, http.StripPrefix(prefix, images.Handler()))
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return reg
}
