package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigInvalidPath    = errors.New("config invalid path")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigIsNil          = errors.New("config is nil")
	ErrConfigLoadFailed     = errors.New("config load failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
	ErrConfigInvalid        = errors.New("config invalid")
)

var (
	ErrServerNotRunning     = errors.New("server not running")
	ErrServerAlreadyRunning = errors.New("server already running")
)

var (
	ErrStorageRead         = errors.New("storage read failed")
	ErrStorageWrite        = errors.New("storage write failed")
	ErrStorageDelete       = errors.New("storage delete failed")
	ErrStorageTypeUnknown  = errors.New("storage type unknown")
	ErrStorageKeyEmpty     = errors.New("storage key empty")
	ErrStorageNotAvailable = errors.New("storage not available")
)

var (
	ErrCacheEntryCorrupt = errors.New("cache entry corrupt")
	ErrCacheKeyEmpty     = errors.New("cache key empty")
	ErrCacheFetchIsNil   = errors.New("cache fetch function is nil")
)

var (
	ErrDatabaseTypeUnknown      = errors.New("database type unknown")
	ErrDatabaseCollectionEmpty  = errors.New("database collection name empty")
	ErrDatabaseRequestFailed    = errors.New("database request failed")
	ErrDatabaseResponseInvalid  = errors.New("database response invalid")
	ErrDocumentNotFound         = errors.New("document not found")
	ErrDocumentInvalid          = errors.New("document invalid")
	ErrDocumentIDEmpty          = errors.New("document id empty")
	ErrEntityTypeUnknown        = errors.New("entity type unknown")
	ErrFilterOperatorNotAllowed = errors.New("filter operator not allowed")
)

var (
	ErrFeedConnectionFailed = errors.New("feed connection failed")
	ErrFeedMessageInvalid   = errors.New("feed message invalid")
)

var (
	ErrCronJobNotFound       = errors.New("cron job not found")
	ErrCronIsRunning         = errors.New("cron is running")
	ErrCronSchedulerStopped  = errors.New("cron scheduler stopped")
	ErrCronJobExists         = errors.New("cron job exists")
	ErrCronExpressionInvalid = errors.New("cron expression invalid")
	ErrCronJobFailed         = errors.New("cron job failed")
	ErrCronJobNameIsEmpty    = errors.New("cron job name is empty")
	ErrCronJobIsNil          = errors.New("cron job is nil")
	ErrCronJobTimeout        = errors.New("cron job timeout")
)

var (
	ErrMetricsTypeUnknown = errors.New("metrics type unknown")
)

var (
	ErrLogFileIsEmpty      = errors.New("log file is empty")
	ErrLogFileWrongFormat  = errors.New("log file wrong format")
	ErrLoggerTypeUnknown   = errors.New("logger type unknown")
	ErrLoggerConfigInvalid = errors.New("logger config invalid")
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotSignedIn      = errors.New("not signed in")
	ErrInvalidParameter = errors.New("invalid parameter")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
