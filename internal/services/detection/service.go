package detection

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/agrispray/internal/model/entities"
	"github.com/LeonardoBeccarini/agrispray/internal/model/messages"
	"github.com/LeonardoBeccarini/agrispray/pkg/dedup"
)

const (
	DefaultUpstreamTimeout = 3 * time.Second
	DefaultDispatchWindow  = 30 * time.Second
	DefaultDedupWindow     = 10 * time.Minute
)

// Config holds the tunables of the orchestrator.
type Config struct {
	UpstreamTimeout time.Duration
	CommandTTL      time.Duration
	ModelVersion    string
	// DispatchWindow bounds the retries of one command publication.
	DispatchWindow time.Duration
	DedupWindow    time.Duration
}

// Deps are the collaborators. Store is required; everything else is optional.
type Deps struct {
	Engine    Engine
	IDs       IDGenerator
	Images    ImageStore
	Store     DetectionStore
	Safety    SafetyChecker
	Publisher CommandPublisher
	Sprays    SprayRecorder
	Events    EventSink
	Provider  SignalProvider
	Metrics   *Metrics
	Logger    *zap.Logger
	Now       func() time.Time
}

// Result is what one processed signal produced. Command is nil for level None.
type Result struct {
	Record    entities.DetectionRecord
	Command   *messages.SprayerCommand
	StorageID string
}

// Service sequences the pipeline. It is safe for concurrent use.
type Service struct {
	cfg     Config
	deps    Deps
	log     *zap.Logger
	builder RecordBuilder
	sent    *dedup.Deduper

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewService(cfg Config, deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("detection: a detection store is required")
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = DefaultUpstreamTimeout
	}
	if cfg.CommandTTL <= 0 {
		cfg.CommandTTL = DefaultCommandTTL
	}
	if cfg.DispatchWindow <= 0 {
		cfg.DispatchWindow = DefaultDispatchWindow
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	if deps.Engine.Planner == nil || deps.Engine.Coverage == nil {
		deps.Engine = NewEngine(deps.Engine.Planner, deps.Engine.Coverage)
	}
	if deps.IDs == nil {
		deps.IDs = RandomIDs{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		cfg:     cfg,
		deps:    deps,
		log:     logger.Named("detection"),
		builder: RecordBuilder{IDs: deps.IDs, ModelVersion: cfg.ModelVersion, Now: deps.Now},
		sent:    dedup.New(cfg.DedupWindow, 0),
	}
	deps.Metrics.WatchDedup("dispatch", s.sent)
	return s, nil
}

// Process runs one request through the whole pipeline.
func (s *Service) Process(ctx context.Context, req DetectRequest) (Result, error) {
	start := s.deps.Now()
	n, err := Normalize(req, start)
	if err != nil {
		s.log.Debug("signal rejected", zap.Error(err))
		return Result{}, err
	}
	return s.run(ctx, n, start)
}

func (s *Service) run(ctx context.Context, n Normalized, start time.Time) (Result, error) {
	sig := n.Signal
	out, err := s.deps.Engine.Evaluate(sig)
	if err != nil {
		return Result{}, err
	}
	if out.ProfileID != sig.PesticideProfileID {
		s.log.Debug("unknown pesticide profile, using default",
			zap.String("requested", sig.PesticideProfileID), zap.String("applied", out.ProfileID))
	}

	if n.Image != nil {
		url, err := s.putImage(ctx, n.Image)
		if err != nil {
			return Result{}, s.failed("image-store", err)
		}
		sig.ImageURL = url
	}

	rec := s.builder.Build(sig, out)

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
	defer cancel()
	storageID, created, err := s.deps.Store.Save(storeCtx, rec)
	if err != nil {
		return Result{}, s.failed("detection-store", err)
	}
	if !created {
		// redelivered signal: the stored record is the one of record
		if rec, err = s.deps.Store.Get(storeCtx, rec.DetectionID); err != nil {
			return Result{}, s.failed("detection-store", err)
		}
	}

	var cmd *messages.SprayerCommand
	if rec.InfectionLevel != entities.LevelNone {
		checks := s.safetyChecks(ctx, sig)
		cmd = BuildSprayerCommand(rec, checks, s.cfg.CommandTTL)
		s.dispatch(rec, cmd)
	}

	if created {
		if s.deps.Events != nil {
			s.deps.Events.Record(rec)
		}
		s.deps.Metrics.observeRecord(rec, s.deps.Now().Sub(start).Seconds())
	}

	s.log.Info("detection processed",
		zap.String("detectionId", rec.DetectionID),
		zap.String("deviceId", rec.DeviceID),
		zap.Stringer("level", rec.InfectionLevel),
		zap.Bool("reviewRequired", rec.ReviewRequired),
		zap.Bool("redelivered", !created),
		zap.Bool("command", cmd != nil))
	return Result{Record: rec, Command: cmd, StorageID: storageID}, nil
}

func (s *Service) putImage(ctx context.Context, img *ImagePayload) (string, error) {
	if s.deps.Images == nil {
		return "", errors.New("no image store configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
	defer cancel()
	return s.deps.Images.Put(ctx, img.Data, img.ContentType)
}

// safetyChecks fails closed: a checker error reports both checks as unsafe.
func (s *Service) safetyChecks(ctx context.Context, sig entities.DetectionSignal) messages.SafetyChecks {
	checks := messages.SafetyChecks{}
	if s.deps.Safety != nil {
		qctx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
		got, err := s.deps.Safety.Check(qctx, SafetyQuery{DeviceID: sig.DeviceID, GPS: sig.GPS, At: sig.Timestamp})
		cancel()
		if err != nil {
			s.deps.Metrics.upstreamFailure("safety")
			s.log.Warn("safety check failed, marking command unsafe",
				zap.String("deviceId", sig.DeviceID), zap.Error(err))
		} else {
			checks = got
		}
	} else {
		checks.WeatherSafe = true
		checks.RecentSprayAvoidance = true
	}
	checks.OperatorOverride = sig.OperatorOverride
	return checks
}

// holdReason is empty when the command may go straight to the device.
func holdReason(rec entities.DetectionRecord, cmd *messages.SprayerCommand) string {
	if cmd.SafetyChecks.OperatorOverride {
		return ""
	}
	if rec.ReviewRequired {
		return "review required"
	}
	if !cmd.SafetyChecks.WeatherSafe || !cmd.SafetyChecks.RecentSprayAvoidance {
		return "safety checks failed"
	}
	return ""
}

func (s *Service) dispatch(rec entities.DetectionRecord, cmd *messages.SprayerCommand) {
	if s.deps.Publisher == nil {
		return
	}
	if reason := holdReason(rec, cmd); reason != "" {
		s.deps.Metrics.command(commandHeld)
		s.log.Info("sprayer command held", zap.String("detectionId", rec.DetectionID), zap.String("reason", reason))
		return
	}
	if !s.sent.ShouldProcess(rec.DetectionID) {
		s.deps.Metrics.command(commandDuplicate)
		s.log.Debug("sprayer command already dispatched", zap.String("detectionId", rec.DetectionID))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.deps.Metrics.command(commandFailed)
		s.log.Warn("service closing, sprayer command dropped", zap.String("detectionId", rec.DetectionID))
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 200 * time.Millisecond
		bo.MaxElapsedTime = s.cfg.DispatchWindow

		attempts := 0
		err := backoff.Retry(func() error {
			attempts++
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.UpstreamTimeout)
			defer cancel()
			return s.deps.Publisher.Publish(ctx, rec.DeviceID, cmd)
		}, bo)
		if err != nil {
			// a later redelivery of the same detection may try again
			s.sent.Forget(rec.DetectionID)
			s.deps.Metrics.command(commandFailed)
			s.deps.Metrics.upstreamFailure("publisher")
			s.log.Error("sprayer command not delivered",
				zap.String("detectionId", rec.DetectionID), zap.Int("attempts", attempts), zap.Error(err))
			return
		}
		s.deps.Metrics.command(commandDispatched)
		s.log.Info("sprayer command dispatched",
			zap.String("detectionId", rec.DetectionID), zap.String("deviceId", rec.DeviceID), zap.Int("attempts", attempts))

		if s.deps.Sprays != nil {
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.UpstreamTimeout)
			defer cancel()
			if err := s.deps.Sprays.RecordSpray(ctx, rec.DeviceID, s.deps.Now()); err != nil {
				s.log.Warn("spray history not updated", zap.String("deviceId", rec.DeviceID), zap.Error(err))
			}
		}
	}()
}

// AnalyzeRequest carries an image only; the scores come from the signal provider.
type AnalyzeRequest struct {
	Image              string                  `json:"image"`
	Metadata           RequestMetadata         `json:"metadata"`
	Sensors            *entities.SensorContext `json:"sensors,omitempty"`
	PesticideProfileID string                  `json:"pesticideProfileId,omitempty"`
	AreaPolygon        []entities.GPS          `json:"areaPolygon,omitempty"`
	OperatorOverride   bool                    `json:"operator_override,omitempty"`
}

// Analyze asks the signal provider for scores and then processes the result.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (Result, error) {
	if s.deps.Provider == nil {
		return Result{}, ErrNoProvider
	}
	if !strings.HasPrefix(strings.TrimSpace(req.Image), "data:") {
		return Result{}, invalid("image", "a data URI is required")
	}
	img, err := ParseDataURI(strings.TrimSpace(req.Image))
	if err != nil {
		return Result{}, err
	}

	ictx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
	scores, err := s.deps.Provider.Infer(ictx, img.Data, img.ContentType)
	cancel()
	if err != nil {
		return Result{}, s.failed("signal-provider", err)
	}

	area, presence, severity := Number(scores.InfectedAreaPct), Number(scores.PresenceConfidence), Number(scores.SeverityConfidence)
	return s.Process(ctx, DetectRequest{
		Image:              req.Image,
		Metadata:           req.Metadata,
		Sensors:            req.Sensors,
		InfectedAreaPct:    &area,
		PresenceConfidence: &presence,
		SeverityConfidence: &severity,
		Infected:           &scores.Infected,
		DiseaseTag:         scores.DiseaseTag,
		PesticideProfileID: req.PesticideProfileID,
		AreaPolygon:        req.AreaPolygon,
		OperatorOverride:   req.OperatorOverride,
	})
}

// Get reads a stored record back.
func (s *Service) Get(ctx context.Context, id string) (entities.DetectionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
	defer cancel()
	rec, err := s.deps.Store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return entities.DetectionRecord{}, err
	}
	if err != nil {
		return entities.DetectionRecord{}, s.failed("detection-store", err)
	}
	return rec, nil
}

// Close waits for in-flight dispatches. Stores are closed by their owner.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) failed(collaborator string, err error) error {
	s.deps.Metrics.upstreamFailure(collaborator)
	s.log.Error("collaborator failed", zap.String("collaborator", collaborator), zap.Error(err))
	return upstream(collaborator, err)
}
