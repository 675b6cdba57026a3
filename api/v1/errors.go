package v1

var (
	// common errors
	ErrSuccess             = newError(0, "ok")
	ErrBadRequest          = newError(400, "bad request")
	ErrNotFound            = newError(404, "not found")
	ErrInternalServerError = newError(500, "internal server error")
	ErrServiceUnavailable  = newError(503, "service unavailable")

	// informer errors
	ErrKindNotFound   = newError(3001, "resource kind not found")
	ErrObjectNotFound = newError(3002, "object not found in cache")
	ErrIndexNotFound  = newError(3003, "index not found")
	ErrCacheNotSynced = newError(3004, "informer cache has not synced")
)
