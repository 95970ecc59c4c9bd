package resilience

import "github.com/kirillkom/city-osm-features/internal/core/domain"

// WrapTemporary marks err as domain.ErrTemporary when classify deems it
// retryable or the breaker rejected the call, so callers can back off
// (queue redelivery, HTTP 503) instead of failing permanently.
func WrapTemporary(operation string, err error, classify ErrorClassifier) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if IsCircuitOpen(err) || (classify != nil && classify(err).Retryable) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
