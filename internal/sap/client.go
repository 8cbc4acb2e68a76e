package sap

import "context"

// EntryType classifies a remote directory entry.
type EntryType string

const (
	EntryFile EntryType = "file"
	EntryDir  EntryType = "dir"
	EntryLink EntryType = "link"
)

// RemoteEntry is one line of a remote directory listing.
type RemoteEntry struct {
	Name string    `json:"name"`
	Size int64     `json:"size"`
	Type EntryType `json:"type"`
}

// TransferClient is the uniform operation set over the concrete
// protocols. The FTP family looks like synchronous request/response
// where SFTP is an SSH channel underneath; this interface is the single
// place that divergence is absorbed, so the orchestrator and the
// diagnostic engine never branch on protocol.
//
// A client is built per connection attempt and never reused. After
// EnsureDirectory succeeds, relative names in UploadStream and an empty
// path in List refer to that directory. Close is idempotent and never
// returns an error for a connection that was never opened.
type TransferClient interface {
	// Connect dials and authenticates. The profile's connect timeout is
	// enforced; a stalled handshake fails with a timeout-shaped error
	// under ErrConnection instead of hanging.
	Connect(ctx context.Context, profile ConnectionProfile) error

	// EnsureDirectory enters path, creating it first if entry fails.
	// When creation also fails, both errors are surfaced.
	EnsureDirectory(path string) error

	// List returns the entries of path, or of the current directory
	// when path is empty.
	List(path string) ([]RemoteEntry, error)

	// UploadStream writes content as the remote file name, framed as a
	// stream for the underlying protocol call.
	UploadStream(name string, content []byte) error

	// Close releases the connection. Safe to call multiple times; close
	// failures are logged, never propagated.
	Close() error
}

// NewTransferClient builds the concrete client for a protocol. The
// implicit-TLS FTP variant shares the FTP client; the profile's
// protocol selects the framing at dial time.
func NewTransferClient(protocol Protocol, log *TransferLog) TransferClient {
	switch protocol {
	case ProtocolSFTP:
		return &sftpClient{log: log}
	default:
		return &ftpClient{log: log}
	}
}
