package websocket

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// IdleReaper disconnects live sessions idle for longer than ttl
type IdleReaper interface {
	ReapIdle(ttl time.Duration) int
}

// SessionCleanupService periodically ends idle live sessions
type SessionCleanupService struct {
	reaper   IdleReaper
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSessionCleanupService creates a new session cleanup service
func NewSessionCleanupService(reaper IdleReaper, ttl, interval time.Duration, logger *zap.Logger) *SessionCleanupService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SessionCleanupService{
		reaper:   reaper,
		ttl:      ttl,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *SessionCleanupService) Start() {
	if s.ttl <= 0 {
		s.logger.Info("Session cleanup disabled")
		return
	}
	s.wg.Add(1)
	go s.cleanupLoop()
	s.logger.Info("Session cleanup service started",
		zap.Duration("idleTTL", s.ttl),
		zap.Duration("interval", s.interval))
}

// Stop gracefully stops the cleanup service
func (s *SessionCleanupService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		s.logger.Info("Session cleanup service stopped")
	})
}

func (s *SessionCleanupService) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *SessionCleanupService) runCleanup() {
	if reaped := s.reaper.ReapIdle(s.ttl); reaped > 0 {
		s.logger.Info("Idle live sessions disconnected", zap.Int("count", reaped))
	}
}
