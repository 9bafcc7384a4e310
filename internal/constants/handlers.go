// Package constants provides shared constants used across the codebase.
package constants

import "time"

// File upload constants
const (
	// MaxUploadSize is the maximum query image upload size in bytes (32MB)
	MaxUploadSize = 32 << 20

	// MultipartMemory is the part of a multipart upload kept in memory
	MultipartMemory = 8 << 20
)

// Server constants
const (
	// RequestTimeout bounds every HTTP request, detector call included
	RequestTimeout = 2 * time.Minute

	// ShutdownTimeout is how long serve waits for in-flight requests
	ShutdownTimeout = 30 * time.Second
)
