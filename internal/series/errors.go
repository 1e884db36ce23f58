package series

import "errors"

var (
	// ErrInvalidAsset is returned when the requested asset id is empty or
	// not present in the token catalog.
	ErrInvalidAsset = errors.New("series: invalid asset id")

	// ErrUpstreamUnavailable is returned when the provider, the cache and
	// the durable store all failed to produce a usable series.
	ErrUpstreamUnavailable = errors.New("series: no data available from any source")
)
