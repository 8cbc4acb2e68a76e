package sap

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"

	"github.com/jlaffaye/ftp"
)

// ftpClient drives plain FTP and implicit-TLS FTP. The profile's
// protocol decides whether the TLS handshake starts on the first byte.
type ftpClient struct {
	conn    *ftp.ServerConn
	profile ConnectionProfile
	log     *TransferLog
	closed  bool
}

func (c *ftpClient) Connect(ctx context.Context, profile ConnectionProfile) error {
	c.profile = profile

	dialCtx, cancel := context.WithTimeout(ctx, profile.ConnectTimeout)
	defer cancel()

	opts := []ftp.DialOption{
		ftp.DialWithContext(dialCtx),
		ftp.DialWithTimeout(profile.ConnectTimeout),
	}
	if profile.WriteTimeout > 0 {
		// Bounds the data-connection teardown after STOR so a stalled
		// remote cannot pin the request.
		opts = append(opts, ftp.DialWithShutTimeout(profile.WriteTimeout))
	}
	if profile.Protocol == ProtocolFTPS {
		opts = append(opts, ftp.DialWithTLS(&tls.Config{
			ServerName:         profile.Host,
			InsecureSkipVerify: profile.TLSSkipVerify,
		}))
	}

	conn, err := ftp.Dial(profile.Addr(), opts...)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %w: dial %s: %w", ErrConnection, ErrConnectTimeout, profile.Addr(), err)
		}
		return fmt.Errorf("%w: dial %s: %w", ErrConnection, profile.Addr(), err)
	}

	if err := conn.Login(profile.Username, profile.Password); err != nil {
		// Quit failure after a failed login is of no further interest.
		_ = conn.Quit()
		return fmt.Errorf("%w: login as %s: %w", ErrConnection, profile.Username, err)
	}

	c.conn = conn
	return nil
}

func (c *ftpClient) EnsureDirectory(path string) error {
	enterErr := c.conn.ChangeDir(path)
	if enterErr == nil {
		return nil
	}

	if mkErr := c.conn.MakeDir(path); mkErr != nil {
		return fmt.Errorf("%w: enter %q: %v; create: %v", ErrNavigation, path, enterErr, mkErr)
	}
	if err := c.conn.ChangeDir(path); err != nil {
		return fmt.Errorf("%w: enter %q after create: %v", ErrNavigation, path, err)
	}
	return nil
}

func (c *ftpClient) List(path string) ([]RemoteEntry, error) {
	entries, err := c.conn.List(path)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", path, err)
	}

	out := make([]RemoteEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, RemoteEntry{
			Name: e.Name,
			Size: int64(e.Size),
			Type: ftpEntryType(e.Type),
		})
	}
	return out, nil
}

func (c *ftpClient) UploadStream(name string, content []byte) error {
	if err := c.conn.Stor(name, bytes.NewReader(content)); err != nil {
		return fmt.Errorf("%w: STOR %q: %w", ErrTransfer, name, err)
	}
	return nil
}

func (c *ftpClient) Close() error {
	if c.closed || c.conn == nil {
		return nil
	}
	c.closed = true
	if err := c.conn.Quit(); err != nil && c.log != nil {
		c.log.Warning("ftp connection close failed", "error", err.Error())
	}
	return nil
}

func ftpEntryType(t ftp.EntryType) EntryType {
	switch t {
	case ftp.EntryTypeFolder:
		return EntryDir
	case ftp.EntryTypeLink:
		return EntryLink
	default:
		return EntryFile
	}
}
