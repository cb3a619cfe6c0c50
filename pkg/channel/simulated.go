package channel

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/jwalitptl/notification-service/internal/model"
	"github.com/jwalitptl/notification-service/pkg/logger"
)

const (
	emailFailure = "Email delivery failed - recipient inbox full"
	smsFailure   = "SMS delivery failed - invalid phone number"
)

type SimulatedConfig struct {
	FailureRate float64
	Latency     time.Duration
	Error       string
}

func DefaultEmailSimulation() SimulatedConfig {
	return SimulatedConfig{FailureRate: 0.05, Latency: 500 * time.Millisecond, Error: emailFailure}
}

func DefaultSMSSimulation() SimulatedConfig {
	return SimulatedConfig{FailureRate: 0.10, Latency: 300 * time.Millisecond, Error: smsFailure}
}

// Simulated stands in for a real provider: it waits Latency and then fails
// with probability FailureRate.
type Simulated struct {
	kind   model.NotificationType
	cfg    SimulatedConfig
	logger *logger.Logger

	mu   sync.Mutex
	rand func() float64
}

func NewSimulated(kind model.NotificationType, cfg SimulatedConfig, log *logger.Logger) *Simulated {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Simulated{
		kind:   kind,
		cfg:    cfg,
		logger: log,
		rand:   src.Float64,
	}
}

// WithRand replaces the random source, mainly for tests.
func (s *Simulated) WithRand(fn func() float64) *Simulated {
	s.mu.Lock()
	s.rand = fn
	s.mu.Unlock()
	return s
}

func (s *Simulated) Kind() model.NotificationType {
	return s.kind
}

func (s *Simulated) Send(ctx context.Context, to, subject, _ string) error {
	s.logger.Info("Sending notification", "channel", string(s.kind), "to", mask(s.kind, to), "subject", subject)

	if s.cfg.Latency > 0 {
		t := time.NewTimer(s.cfg.Latency)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	s.mu.Lock()
	roll := s.rand()
	s.mu.Unlock()

	if roll < s.cfg.FailureRate {
		s.logger.Warn("Simulated delivery failed", "channel", string(s.kind), "to", mask(s.kind, to), "reason", s.cfg.Error)
		return errors.New(s.cfg.Error)
	}
	return nil
}

func mask(kind model.NotificationType, to string) string {
	if kind == model.NotificationTypeSMS {
		return logger.MaskPhone(to)
	}
	return logger.MaskEmail(to)
}
