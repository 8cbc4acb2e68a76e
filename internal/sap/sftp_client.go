package sap

import (
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// sftpClient drives SFTP over SSH. SFTP has no working directory, so
// the directory entered by EnsureDirectory is tracked locally and
// relative names are joined onto it.
type sftpClient struct {
	sshConn      *ssh.Client
	client       *sftp.Client
	cwd          string
	writeTimeout time.Duration
	log          *TransferLog
	closed       bool
}

func (c *sftpClient) Connect(ctx context.Context, profile ConnectionProfile) error {
	dialCtx, cancel := context.WithTimeout(ctx, profile.ConnectTimeout)
	defer cancel()

	dialer := net.Dialer{Timeout: profile.ConnectTimeout}
	raw, err := dialer.DialContext(dialCtx, "tcp", profile.Addr())
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %w: dial %s: %w", ErrConnection, ErrConnectTimeout, profile.Addr(), err)
		}
		return fmt.Errorf("%w: dial %s: %w", ErrConnection, profile.Addr(), err)
	}

	sshCfg := &ssh.ClientConfig{
		User: profile.Username,
		Auth: []ssh.AuthMethod{ssh.Password(profile.Password)},
		// The drop servers are legacy appliances without managed host
		// keys; transport privacy is still provided by SSH itself.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         profile.ConnectTimeout,
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(raw, profile.Addr(), sshCfg)
	if err != nil {
		_ = raw.Close()
		if isTimeout(err) {
			return fmt.Errorf("%w: %w: ssh handshake %s: %w", ErrConnection, ErrConnectTimeout, profile.Addr(), err)
		}
		return fmt.Errorf("%w: ssh handshake as %s: %w", ErrConnection, profile.Username, err)
	}

	c.sshConn = ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(c.sshConn)
	if err != nil {
		_ = c.sshConn.Close()
		c.sshConn = nil
		return fmt.Errorf("%w: open sftp subsystem: %w", ErrConnection, err)
	}

	c.client = client
	c.cwd = "."
	c.writeTimeout = profile.WriteTimeout
	return nil
}

func (c *sftpClient) EnsureDirectory(dir string) error {
	enterErr := c.enter(dir)
	if enterErr == nil {
		return nil
	}

	if mkErr := c.client.MkdirAll(dir); mkErr != nil {
		return fmt.Errorf("%w: enter %q: %v; create: %v", ErrNavigation, dir, enterErr, mkErr)
	}
	if err := c.enter(dir); err != nil {
		return fmt.Errorf("%w: enter %q after create: %v", ErrNavigation, dir, err)
	}
	return nil
}

// enter verifies dir exists and is a directory, then adopts it as the
// working directory.
func (c *sftpClient) enter(dir string) error {
	info, err := c.client.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%q is not a directory", dir)
	}
	c.cwd = dir
	return nil
}

func (c *sftpClient) List(dir string) ([]RemoteEntry, error) {
	if dir == "" {
		dir = c.cwd
	}

	infos, err := c.client.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", dir, err)
	}

	out := make([]RemoteEntry, 0, len(infos))
	for _, info := range infos {
		entryType := EntryFile
		if info.IsDir() {
			entryType = EntryDir
		} else if info.Mode()&os.ModeSymlink != 0 {
			entryType = EntryLink
		}
		out = append(out, RemoteEntry{
			Name: info.Name(),
			Size: info.Size(),
			Type: entryType,
		})
	}
	return out, nil
}

func (c *sftpClient) UploadStream(name string, content []byte) error {
	remote := name
	if !path.IsAbs(remote) {
		remote = path.Join(c.cwd, name)
	}

	f, err := c.client.Create(remote)
	if err != nil {
		return fmt.Errorf("%w: open %q: %w", ErrTransfer, remote, err)
	}

	// The sftp package has no per-operation deadline, so a stalled
	// remote would block Write forever. Tearing down the transport
	// forces the pending request to fail instead.
	if c.writeTimeout > 0 {
		watchdog := time.AfterFunc(c.writeTimeout, func() {
			if c.log != nil {
				c.log.Warning("write stalled, aborting transfer", "timeout", c.writeTimeout.String())
			}
			_ = c.sshConn.Close()
		})
		defer watchdog.Stop()
	}

	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: write %q: %w", ErrTransfer, remote, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %q: %w", ErrTransfer, remote, err)
	}
	return nil
}

func (c *sftpClient) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	if c.client != nil {
		if err := c.client.Close(); err != nil && c.log != nil {
			c.log.Warning("sftp channel close failed", "error", err.Error())
		}
	}
	if c.sshConn != nil {
		if err := c.sshConn.Close(); err != nil && c.log != nil {
			c.log.Warning("ssh connection close failed", "error", err.Error())
		}
	}
	return nil
}
