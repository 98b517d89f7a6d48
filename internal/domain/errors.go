package domain

import "errors"

// Sentinel errors for the pipeline. Callers distinguish them with errors.Is.
var (
	// ErrMissingEventType rejects a record whose event_type is absent or empty.
	ErrMissingEventType = errors.New("ampship: missing event_type")

	// ErrMissingIdentity rejects a record carrying neither a usable user_id
	// nor a usable device_id.
	ErrMissingIdentity = errors.New("ampship: missing user_id and device_id")

	// ErrExportTooLarge maps the Export API's 400: the requested range would
	// produce an archive over the 4 GiB export limit.
	ErrExportTooLarge = errors.New("ampship: export range exceeds size limit")

	// ErrExportNoData maps the Export API's 404: no events in the range.
	ErrExportNoData = errors.New("ampship: no data for export range")

	// ErrExportTimeout maps the Export API's 504: the range is too large to
	// serve in time.
	ErrExportTimeout = errors.New("ampship: export request timed out")

	// ErrOversizeBatches reports that bundling produced batches whose lone
	// event already exceeds the byte ceiling and uploading was not forced.
	ErrOversizeBatches = errors.New("ampship: oversize batches present")
)
