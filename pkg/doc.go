// Package pkg provides shared utilities for the softusb firmware.
//
// This package contains functionality used by every layer of the image,
// from the executor up to the CDC-ACM class:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors grouped by how the image reacts to them
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentDevice, "device configured", "config", 1)
//
// # Errors
//
// Errors fall into four groups. Startup errors ([ErrDoubleInit],
// [ErrDescriptorOverflow], [ErrInvalidConfig]) halt the image before the
// executor runs. Protocol rejects ([ErrStall], [ErrInvalidRequest]) are
// answered with a STALL and never leave the device stack. Caller misuse
// ([ErrTransferInProgress], [ErrNotConfigured]) is returned to the caller.
// Runtime faults ([ErrTaskExited], [ErrSignalBusy]) stop the executor.
//
//	if errors.Is(err, pkg.ErrTransferInProgress) {
//	    // wait for the completion event before submitting again
//	}
package pkg
