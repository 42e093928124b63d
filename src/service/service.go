package service

import (
	"github.com/rs/zerolog"

	"github.com/docflow/eventhub/src/hub"
	"github.com/docflow/eventhub/src/types"
)

// Service is the API handed to the rest of the system: typed publish helpers
// over the hub's broadcast/unicast primitives plus lifecycle handler
// registration. Batch collaborators (extraction, scraping, training jobs)
// should not hand-build wire messages.
type Service struct {
	hub    *hub.Hub
	logger zerolog.Logger
}

// New creates a service backed by the given hub.
func New(h *hub.Hub, logger zerolog.Logger) *Service {
	return &Service{hub: h, logger: logger.With().Str("component", "service").Logger()}
}

// Hub returns the underlying hub.
func (s *Service) Hub() *hub.Hub { return s.hub }

// Broadcast publishes an event to all matching connections.
func (s *Service) Broadcast(eventType string, data map[string]any, requiredRoles ...string) int {
	n := s.hub.Broadcast(eventType, data, requiredRoles...)
	s.logger.Debug().Str("type", eventType).Int("delivered", n).Msg("broadcast")
	return n
}

// Unicast publishes an event to all of one user's connections.
func (s *Service) Unicast(userID, eventType string, data map[string]any) int {
	n := s.hub.Unicast(userID, eventType, data)
	s.logger.Debug().Str("type", eventType).Str("user_id", userID).Int("delivered", n).Msg("unicast")
	return n
}

// ProcessingStarted announces that a job began working on a document.
func (s *Service) ProcessingStarted(jobID, filename string) int {
	return s.Broadcast(types.EventProcessingStarted, map[string]any{
		"job_id": jobID, "filename": filename,
	})
}

// ProcessingProgress reports fractional progress for a running job.
func (s *Service) ProcessingProgress(jobID string, progress float64) int {
	return s.Broadcast(types.EventProcessingProgress, map[string]any{
		"job_id": jobID, "progress": progress,
	})
}

// ProcessingCompleted announces a finished job with its result summary.
func (s *Service) ProcessingCompleted(jobID string, result map[string]any) int {
	return s.Broadcast(types.EventProcessingCompleted, map[string]any{
		"job_id": jobID, "result": result,
	})
}

// ProcessingFailed announces a failed job.
func (s *Service) ProcessingFailed(jobID, reason string) int {
	return s.Broadcast(types.EventProcessingFailed, map[string]any{
		"job_id": jobID, "error": reason,
	})
}

// FileDetected announces a newly watched input file.
func (s *Service) FileDetected(path string) int {
	return s.Broadcast(types.EventFileDetected, map[string]any{"path": path})
}

// DownloadCompleted announces a finished scraper download.
func (s *Service) DownloadCompleted(url, path string) int {
	return s.Broadcast(types.EventDownloadCompleted, map[string]any{
		"url": url, "path": path,
	})
}

// SystemAlert broadcasts an operational alert, optionally restricted by role.
func (s *Service) SystemAlert(severity, message string, requiredRoles ...string) int {
	return s.Broadcast(types.EventSystemAlert, map[string]any{
		"severity": severity, "message": message,
	}, requiredRoles...)
}

// UserNotification delivers a notification to one user's connections.
func (s *Service) UserNotification(userID, message string) int {
	return s.Unicast(userID, types.EventUserNotification, map[string]any{
		"message": message,
	})
}

// OnConnection registers a handler for established connections.
func (s *Service) OnConnection(fn hub.Handler) uint64 {
	return s.hub.On(types.EventConnectionEstablished, fn)
}

// OnDisconnection registers a handler for closed connections.
func (s *Service) OnDisconnection(fn hub.Handler) uint64 {
	return s.hub.On(types.EventConnectionClosed, fn)
}

// OnClientMessage registers a handler for application-level client messages.
func (s *Service) OnClientMessage(fn hub.Handler) uint64 {
	return s.hub.On(types.EventClientMessage, fn)
}

// Stats returns the hub counter snapshot.
func (s *Service) Stats() types.Stats { return s.hub.Stats() }

// ListConnections returns summaries of live connections.
func (s *Service) ListConnections() []types.ConnectionSummary {
	return s.hub.ListConnections()
}
