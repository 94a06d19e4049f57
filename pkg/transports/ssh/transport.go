// Package ssh copies database snapshots to and from a remote host over SFTP.
package ssh

import (
	"context"
	"time"
)

// Transport defines the remote file operations used for off-site backups.
type Transport interface {
	// Connect establishes an SSH connection to the remote host.
	// Returns an error if connection fails or authentication is rejected.
	Connect(ctx context.Context) error

	// Disconnect closes the SSH connection and releases all resources.
	Disconnect() error

	// IsConnected returns true if the transport has an active connection.
	IsConnected() bool

	// HealthCheck verifies that the SFTP subsystem answers.
	HealthCheck(ctx context.Context) error

	// UploadFile copies a local file to remotePath, creating parent
	// directories. The file is written under a temporary name and renamed
	// once its checksum matches.
	UploadFile(ctx context.Context, localPath string, remotePath string, mode uint32) (*FileTransferResult, error)

	// DownloadFile copies a remote file to localPath the same way.
	DownloadFile(ctx context.Context, remotePath string, localPath string) (*FileTransferResult, error)

	// ListFiles returns the regular files in a remote directory, sorted by
	// name. A missing directory yields an empty list.
	ListFiles(ctx context.Context, remoteDir string) ([]RemoteFile, error)

	// RemoveFile deletes a remote file.
	RemoveFile(ctx context.Context, remotePath string) error

	// ComputeChecksum calculates the SHA-256 of a remote file.
	ComputeChecksum(ctx context.Context, remotePath string) (string, error)

	// GetConnectionInfo returns information about the current connection.
	GetConnectionInfo() ConnectionInfo
}

// ConnectionInfo contains details about an active SSH connection.
type ConnectionInfo struct {
	Host string
	Port int
	User string

	// ConnectedAt is when the connection was established
	ConnectedAt time.Time

	// LastActivity is when the connection was last used
	LastActivity time.Time
}

// RemoteFile describes one file in a remote directory.
type RemoteFile struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// FileTransferResult represents the result of a file transfer operation.
type FileTransferResult struct {
	// BytesTransferred is the number of bytes transferred
	BytesTransferred int64

	// Duration is the time taken for the transfer
	Duration time.Duration

	// Checksum is the SHA-256 of the transferred file, verified on both ends.
	Checksum string

	StartedAt  time.Time
	FinishedAt time.Time
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "upload")
	Op string

	// Err is the underlying error
	Err error

	// IsTemporary indicates if the error is temporary and can be retried
	IsTemporary bool

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}
