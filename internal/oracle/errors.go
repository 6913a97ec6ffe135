package oracle

import "errors"

var (
	// ErrNotOwner indicates a mutating call from anyone but the configured owner.
	ErrNotOwner = errors.New("caller is not the oracle owner")

	// ErrZeroAddress indicates a zero asset or adapter address in a setter input.
	ErrZeroAddress = errors.New("zero address")

	// ErrLengthMismatch indicates bulk setter input arrays of unequal length.
	ErrLengthMismatch = errors.New("input array length mismatch")

	// ErrNoRoute indicates no adapter is registered for the asset.
	ErrNoRoute = errors.New("no oracle route for asset")

	// ErrPriceUnavailable indicates a dependency failed or returned a zero price.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrPriceDeviation indicates spot and twap prices diverged beyond the
	// configured bound and the valuation was rejected as potentially manipulated.
	ErrPriceDeviation = errors.New("spot/twap price deviation exceeded")

	// ErrDeviationCapExceeded indicates a per-asset deviation bound above the
	// protocol-wide cap.
	ErrDeviationCapExceeded = errors.New("max deviation above global cap")

	// ErrThresholdTooLow indicates a liquidation threshold below the minimum.
	ErrThresholdTooLow = errors.New("liquidation threshold below minimum")

	// ErrThresholdTooHigh indicates a liquidation threshold above the denominator.
	ErrThresholdTooHigh = errors.New("liquidation threshold above denominator")

	// ErrWrapperNotWhitelisted indicates position valuation on a wrapper asset
	// that has not been whitelisted.
	ErrWrapperNotWhitelisted = errors.New("wrapper asset not whitelisted")
)
