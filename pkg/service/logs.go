package service

import (
	"context"
	"strings"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/telemetry"
)

// SetLogLevel changes the minimum level of the application logger.
func (s *Service) SetLogLevel(ctx context.Context, level string) (err error) {
	c := s.start(ctx, "set_log_level", "", "")
	defer c.end(&err)

	level = strings.ToLower(strings.TrimSpace(level))
	if err := s.tel.Logger.SetLevel(level); err != nil {
		return err
	}

	c.Logger.WithField("level", level).Info("log level changed")
	return nil
}

// LogLevel returns the active minimum level.
func (s *Service) LogLevel() string {
	return s.tel.Logger.Level()
}

// GetRecentLogs returns the newest entries of today's log file.
func (s *Service) GetRecentLogs(ctx context.Context, req domain.LogsRequest) (entries []telemetry.LogEntry, err error) {
	c := s.start(ctx, "get_recent_logs", "", "")
	defer c.end(&err)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	filter := ""
	if req.LevelFilter != nil {
		filter = *req.LevelFilter
	}

	entries, err = s.tel.Logger.RecentLogs(req.Count, filter)
	if err != nil {
		return nil, domain.NewInternalError("failed to read log file", err)
	}
	return entries, nil
}
