package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/shiftboard-api/pkg/database"
	appErrors "github.com/noah-isme/shiftboard-api/pkg/errors"
)

// translateStoreError passes typed errors through, maps contention and
// timeouts to RETRYABLE and logs everything else as internal.
func translateStoreError(logger *zap.Logger, err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if database.IsTransient(err) || errors.Is(err, context.Canceled) {
		logger.Warn(message, zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrRetryable.Code, appErrors.ErrRetryable.Status, appErrors.ErrRetryable.Message)
	}
	logger.Error(message, zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
