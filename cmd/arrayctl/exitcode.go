package main

import "github.com/gridarray/engine/internal/engineerr"

// exitCode maps an error to one of the CLI's documented exit codes:
// 1 argument error, 2 I/O error, 3 schema/format error, 4 overflow
// (incomplete read). Errors that are not an *engineerr.Error — flag
// parsing failures, usage errors — fall through to 1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	switch engineerr.KindOf(err) {
	case engineerr.IoError, engineerr.NotFound, engineerr.AlreadyExists, engineerr.PermissionDenied,
		engineerr.NotSupported, engineerr.Cancelled, engineerr.InternalError:
		return 2
	case engineerr.SchemaError, engineerr.FormatError, engineerr.CompressionError,
		engineerr.DomainError, engineerr.LayoutError:
		return 3
	case engineerr.BufferOverflow:
		return 4
	default:
		return 1
	}
}
