// Package logger provides structured logging for glexport on top of
// zerolog: leveled console output with colors, optional file output, a
// global instance, and field helpers.
//
// Basic usage:
//
//	cfg := &config.LoggingConfig{Level: "info"}
//	if err := logger.Initialize(cfg); err != nil { ... }
//
//	logger.Info("export started")
//	logger.WithError(err).Error("write failed")
//
//	log := logger.GetLogger().WithField("component", "lock")
//	log.WarnWithFields("reclaimed stale lock", map[string]interface{}{
//	    "path": path,
//	})
package logger
