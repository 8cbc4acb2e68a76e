package sap

import (
	"fmt"
	"strings"
	"time"

	"github.com/translogix/invoicing/internal/config"
)

// Protocol identifies a concrete transfer protocol.
type Protocol string

const (
	ProtocolFTP  Protocol = "ftp"
	ProtocolFTPS Protocol = "ftps" // implicit TLS from the first byte
	ProtocolSFTP Protocol = "sftp"

	// ProtocolNone is the diagnostic recommendation when nothing works.
	ProtocolNone Protocol = "none"
)

const (
	defaultFTPPort  = 21
	defaultSFTPPort = 22
)

// Dev-only fallback credentials, used exclusively when
// sap.allow_dev_defaults is set. They target a throwaway local server.
const (
	devDefaultHost     = "localhost"
	devDefaultUsername = "sapdrop"
	devDefaultPassword = "sapdrop"
	devDefaultPath     = "/inbound"
)

// ConnectionProfile is a fully resolved set of connection parameters.
// Profiles are values and never mutate; each connection attempt builds
// a fresh transfer client from its own profile.
type ConnectionProfile struct {
	Protocol       Protocol
	Host           string
	Port           int
	Username       string
	Password       string
	RemotePath     string
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	TLSSkipVerify  bool

	// Implicit-TLS port for the FTPS variant; falls back to Port.
	tlsPort int
}

// Addr returns the host:port dial address.
func (p ConnectionProfile) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// ImplicitTLSVariant derives the FTPS profile sharing this profile's
// credentials: same host and path, TLS framing from the first byte.
func (p ConnectionProfile) ImplicitTLSVariant() ConnectionProfile {
	out := p
	out.Protocol = ProtocolFTPS
	if p.tlsPort != 0 {
		out.Port = p.tlsPort
	}
	return out
}

// ResolveProfile builds the connection profile for the given protocol
// from layered configuration: the protocol-specific block wins, the
// generic legacy block fills the gaps, and built-in dev defaults apply
// only when explicitly allowed. The minimum of host, username and
// password must survive resolution or the result is ErrConfiguration.
func ResolveProfile(cfg config.SAPConfig, protocol Protocol, log *TransferLog) (ConnectionProfile, error) {
	var specific config.ProtocolSettings
	defaultPort := defaultFTPPort
	switch protocol {
	case ProtocolFTP, ProtocolFTPS:
		specific = cfg.FTP
	case ProtocolSFTP:
		specific = cfg.SFTP
		defaultPort = defaultSFTPPort
	default:
		return ConnectionProfile{}, fmt.Errorf("%w: unknown protocol %q", ErrConfiguration, protocol)
	}

	profile := ConnectionProfile{
		Protocol:       protocol,
		Host:           firstNonEmpty(specific.Host, cfg.Host),
		Username:       firstNonEmpty(specific.Username, cfg.Username),
		Password:       firstNonEmpty(specific.Password, cfg.Password),
		RemotePath:     firstNonEmpty(specific.RemotePath, cfg.RemotePath),
		Port:           firstNonZero(specific.Port, cfg.Port),
		ConnectTimeout: cfg.ConnectTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		TLSSkipVerify:  cfg.TLSSkipVerify,
		tlsPort:        specific.TLSPort,
	}

	tier := "generic"
	if specific.Host != "" {
		tier = "protocol-specific"
	}

	if profile.Host == "" && profile.Username == "" && profile.Password == "" && cfg.AllowDevDefaults {
		tier = "dev-defaults"
		profile.Host = devDefaultHost
		profile.Username = devDefaultUsername
		profile.Password = devDefaultPassword
		if profile.RemotePath == "" {
			profile.RemotePath = devDefaultPath
		}
	}

	var missing []string
	if profile.Host == "" {
		missing = append(missing, "host")
	}
	if profile.Username == "" {
		missing = append(missing, "username")
	}
	if profile.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return ConnectionProfile{}, fmt.Errorf("%w: missing %s for %s",
			ErrConfiguration, strings.Join(missing, ", "), protocol)
	}

	if profile.Port == 0 {
		profile.Port = defaultPort
	}
	if profile.ConnectTimeout <= 0 {
		profile.ConnectTimeout = 25 * time.Second
	}

	if log != nil {
		log.Info("resolved connection profile",
			"protocol", string(protocol),
			"tier", tier,
			"host", profile.Host,
			"port", profile.Port,
			"username", profile.Username,
			"remote_path", profile.RemotePath,
		)
	}

	return profile, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
