package constants

import (
	"time"
)

// Artifact format
const (
	// AudioExtension - every stored artifact carries this suffix. Display names strip it.
	AudioExtension = ".mp3"

	// AudioMIMEType - MIME type passed to grant providers when creating an artifact
	AudioMIMEType = "audio/mpeg"

	// DefaultFileName - used when the user clears the suggested name
	DefaultFileName = "downloaded_file" + AudioExtension
)

// Storage layout
const (
	// SandboxSubdir - location of the private download root under the data directory
	SandboxSubdir = "MixTape/downloads"

	// PartialDirName - hidden directory inside a sandbox root holding in-flight temp files.
	// Listing skips it.
	PartialDirName = ".partial"

	// TempSuffix - suffix appended to temp and scratch artifacts
	TempSuffix = ".part"

	// ResumeStateFileName - single persisted resume record
	ResumeStateFileName = "resume.json"

	// DestinationFileName - persisted external destination selection. Absent means sandboxed.
	DestinationFileName = "destination.json"

	// GrantsFileName - issued grant tokens and the provider each one unlocks
	GrantsFileName = "grants.json"
)

// Transfer tuning
const (
	// CopyBufferSize - size of a single chunk read from the stream (32 KB).
	// Cancellation is observed between chunks, so this bounds cancel latency.
	CopyBufferSize = 32 * 1024

	// PersistInterval - bytes written between fsync + resume-record saves (1 MB)
	PersistInterval = 1 * 1024 * 1024

	// ProgressMinInterval - minimum time between published progress values.
	// Terminal values are never throttled.
	ProgressMinInterval = 100 * time.Millisecond
)

// Retry configuration
const (
	// MaxRetries - maximum number of retries for transient errors
	MaxRetries = 5

	// RetryInitialDelay - initial delay before first retry (200ms)
	RetryInitialDelay = 200 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (15s)
	// Exponential backoff with jitter caps at this value
	RetryMaxDelay = 15 * time.Second
)

// Disk space safety margin
const (
	// DiskSpaceBufferPercent - additional space to require beyond file size (15%)
	DiskSpaceBufferPercent = 0.15
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels
	EventBusDefaultBuffer = 256
)

// Resolver
const (
	// ResolverDefaultBaseURL - passthrough proxy that fronts the conversion service
	ResolverDefaultBaseURL = "http://localhost:3000"

	// ResolverTimeout - conversion can take a while for long tracks
	ResolverTimeout = 60 * time.Second

	// ResolverRatePerMinute - conversion service quota
	ResolverRatePerMinute = 10

	// ResolverBurst - calls allowed back to back before throttling
	ResolverBurst = 3
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPResponseHeaderTimeout - time to wait for stream headers once the request is sent
	HTTPResponseHeaderTimeout = 60 * time.Second

	// ProxyWarmupTimeout - upper bound on the optional proxy warmup request
	ProxyWarmupTimeout = 15 * time.Second
)

// Grant operations
const (
	// GrantOperationTimeout - bound on a single grant API call (create/write/stat/remove)
	GrantOperationTimeout = 10 * time.Minute
)
