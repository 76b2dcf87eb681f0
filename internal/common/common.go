package common

import "time"

// Shared constants to enforce DRY and avoid magic strings/numbers.

// HTTP headers and content types
const (
	HeaderAPIKey      = "X-API-Key" // #nosec G101 - header name constant, not a credential
	HeaderContentType = "Content-Type"
	ContentTypeJSON   = "application/json"
)

// Dashboard API paths
const (
	PathHealthz    = "/healthz"
	PathRecordings = "/v1/recordings"
	PathPersonas   = "/v1/personas"
)

// Analysis backend paths, relative to the configured base URL
const (
	BackendPathUpload     = "upload_audio"
	BackendPathRecordings = "get_recordings"
	BackendPathAnalysis   = "get_analysis"
	BackendPathDelete     = "delete_analysis"
)

// Multipart and query field names understood by the analysis backend
const (
	FieldFile    = "file"
	FieldOwner   = "user_oid"
	FieldPersona = "persona"
	FieldContext = "context"
	FieldName    = "name"
)

// Defaults and limits
const (
	DefaultPollInterval    = 5 * time.Second
	DefaultStaleAfterPolls = 12
	DefaultBackendTimeout  = 60 * time.Second
	DefaultOwnerID         = "test-employee-001"
	DefaultMailboxCapacity = 64
	SQLiteBusyTimeoutMS    = 5000
)

// MIME types
const (
	MimeAudioMPEG = "audio/mpeg"
	MimeAudioMP4  = "audio/mp4"
	MimeAudioWAV  = "audio/wav"
	MimeAudioOGG  = "audio/ogg"
	MimeAudioWebM = "audio/webm"
	MimeAudioFLAC = "audio/flac"
)

// Subdirectory names
const (
	UploadsDirName = "uploads"
)

// SpoolFilePrefix names uploads spooled to disk before they are forwarded.
const SpoolFilePrefix = "upload-"

// LocalIDPrefix marks ids synthesized on the client before the backend confirms a job.
const LocalIDPrefix = "local-"
