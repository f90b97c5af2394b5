package detection

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/agrispray/pkg/dedup"
)

// SignalTopicPrefix is where devices publish detection signals, one subtopic per device.
const SignalTopicPrefix = "detection/signal/"

// SignalHandler feeds MQTT signal messages into the service. QoS 1 redeliveries are dropped by payload hash.
type SignalHandler struct {
	svc     *Service
	seen    *dedup.Deduper
	log     *zap.Logger
	timeout time.Duration
}

func NewSignalHandler(svc *Service, seen *dedup.Deduper, logger *zap.Logger, timeout time.Duration) *SignalHandler {
	if seen == nil {
		seen = dedup.New(DefaultDedupWindow, 20000)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * DefaultUpstreamTimeout
	}
	return &SignalHandler{svc: svc, seen: seen, log: logger.Named("ingest"), timeout: timeout}
}

// Handle matches the consumer callback signature. Bad payloads are logged and acknowledged.
func (h *SignalHandler) Handle(_ string, m mqtt.Message) error {
	sum := sha256.Sum256(m.Payload())
	key := hex.EncodeToString(sum[:])
	if !h.seen.ShouldProcess(key) {
		h.log.Debug("duplicate signal dropped", zap.String("topic", m.Topic()))
		return nil
	}

	var req DetectRequest
	if err := json.Unmarshal(m.Payload(), &req); err != nil {
		h.log.Warn("invalid signal payload", zap.String("topic", m.Topic()), zap.Error(err))
		return nil
	}
	if strings.TrimSpace(req.Metadata.DeviceID) == "" {
		req.Metadata.DeviceID = DeviceFromTopic(m.Topic())
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	res, err := h.svc.Process(ctx, req)
	if errors.Is(err, ErrInvalidInput) {
		h.log.Warn("signal rejected", zap.String("topic", m.Topic()), zap.Error(err))
		return nil
	}
	if err != nil {
		// let a redelivery try again
		h.seen.Forget(key)
		return err
	}
	h.log.Debug("signal processed", zap.String("detectionId", res.Record.DetectionID))
	return nil
}

// DeviceFromTopic returns the first segment after the signal prefix.
func DeviceFromTopic(topic string) string {
	rest, ok := strings.CutPrefix(topic, SignalTopicPrefix)
	if !ok {
		return ""
	}
	device, _, _ := strings.Cut(rest, "/")
	return device
}
