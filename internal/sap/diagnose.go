package sap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/translogix/invoicing/internal/config"
)

// ProbeResult records what one protocol family achieved against the
// configured host. Built once per diagnostic run, never mutated after.
type ProbeResult struct {
	Protocol         Protocol `json:"protocol"`
	Connected        bool     `json:"connected"`
	RootEntries      *int     `json:"root_entries,omitempty"`
	TargetAccessible *bool    `json:"target_accessible,omitempty"`
	TargetEntries    *int     `json:"target_entries,omitempty"`
	TLSFallback      bool     `json:"tls_fallback,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// reachedTarget reports whether the probe could list the drop directory.
func (r *ProbeResult) reachedTarget() bool {
	return r.Connected && r.TargetAccessible != nil && *r.TargetAccessible
}

// Recommendation is the diagnostic engine's verdict.
type Recommendation struct {
	Protocol  Protocol `json:"protocol"`
	Reasoning string   `json:"reasoning"`
}

// DiagnosticReport bundles the per-protocol results, the
// recommendation, and the full step log.
type DiagnosticReport struct {
	FTP            *ProbeResult   `json:"ftp"`
	SFTP           *ProbeResult   `json:"sftp"`
	Recommendation Recommendation `json:"recommendation"`
}

// HostOverrides optionally replaces pieces of the configured generic
// tier for one diagnostic run, so operators can probe a candidate host
// without editing configuration.
type HostOverrides struct {
	Host       string `json:"host,omitempty"`
	Port       int    `json:"port,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	RemotePath string `json:"remote_path,omitempty"`
}

// Diagnostics probes every concrete transfer client against the
// configured host and derives a recommendation. It is read-only toward
// the remote: directories are observed, never created. Not part of the
// upload path.
type Diagnostics struct {
	cfg    config.SAPConfig
	logger *zap.Logger

	// test seam; defaults to NewTransferClient
	newClient func(Protocol, *TransferLog) TransferClient
}

// NewDiagnostics creates a diagnostic engine.
func NewDiagnostics(cfg config.SAPConfig, logger *zap.Logger) *Diagnostics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Diagnostics{cfg: cfg, logger: logger, newClient: NewTransferClient}
}

// Diagnose probes FTP (with its implicit-TLS fallback) and SFTP
// independently; one protocol's failure never aborts the other. The
// report and the full log are returned together on every path.
func (d *Diagnostics) Diagnose(ctx context.Context, overrides HostOverrides) (*DiagnosticReport, *TransferLog) {
	cfg := applyOverrides(d.cfg, overrides)
	log := NewTransferLog(d.logger)

	log.Info("starting connectivity diagnosis")

	report := &DiagnosticReport{
		FTP:  d.probeFTP(ctx, cfg, log),
		SFTP: d.probe(ctx, cfg, ProtocolSFTP, log),
	}
	report.Recommendation = recommend(report.FTP, report.SFTP)

	log.Info("diagnosis complete",
		"recommended", string(report.Recommendation.Protocol),
		"reasoning", report.Recommendation.Reasoning,
	)
	return report, log
}

// probeFTP exercises plain FTP and, when credentials are rejected, the
// implicit-TLS framing with the same credentials.
func (d *Diagnostics) probeFTP(ctx context.Context, cfg config.SAPConfig, log *TransferLog) *ProbeResult {
	profile, err := ResolveProfile(cfg, ProtocolFTP, log)
	if err != nil {
		log.Error("cannot probe, profile incomplete", "protocol", string(ProtocolFTP), "error", err.Error())
		return &ProbeResult{Protocol: ProtocolFTP, Error: err.Error()}
	}

	result, connectErr := d.probeProfile(ctx, profile, log)
	if result.Connected || !isAuthFailure(connectErr) {
		return result
	}

	log.Warning("plain FTP rejected credentials, probing implicit TLS")
	tlsResult, _ := d.probeProfile(ctx, profile.ImplicitTLSVariant(), log)
	if tlsResult.Connected {
		tlsResult.TLSFallback = true
		return tlsResult
	}
	return result
}

func (d *Diagnostics) probe(ctx context.Context, cfg config.SAPConfig, protocol Protocol, log *TransferLog) *ProbeResult {
	profile, err := ResolveProfile(cfg, protocol, log)
	if err != nil {
		log.Error("cannot probe, profile incomplete", "protocol", string(protocol), "error", err.Error())
		return &ProbeResult{Protocol: protocol, Error: err.Error()}
	}
	result, _ := d.probeProfile(ctx, profile, log)
	return result
}

// probeProfile runs the observation sequence for one profile: connect,
// list root, list target, close. The target directory is never created
// here; diagnosis must not mutate remote state. The connect error is
// returned alongside so callers can classify it.
func (d *Diagnostics) probeProfile(ctx context.Context, profile ConnectionProfile, log *TransferLog) (*ProbeResult, error) {
	result := &ProbeResult{Protocol: profile.Protocol}

	client := d.newClient(profile.Protocol, log)
	if err := client.Connect(ctx, profile); err != nil {
		result.Error = err.Error()
		log.Error("probe connect failed", "protocol", string(profile.Protocol), "error", err.Error())
		return result, err
	}
	defer client.Close()

	result.Connected = true
	log.Success("probe connected", "protocol", string(profile.Protocol), "host", profile.Host)

	if entries, err := client.List(""); err != nil {
		log.Warning("root listing failed", "protocol", string(profile.Protocol), "error", err.Error())
	} else {
		n := len(entries)
		result.RootEntries = &n
		log.Info("root listing ok", "protocol", string(profile.Protocol), "entries", n)
	}

	accessible := false
	if entries, err := client.List(profile.RemotePath); err != nil {
		result.TargetAccessible = &accessible
		log.Warning("target directory not accessible",
			"protocol", string(profile.Protocol), "path", profile.RemotePath, "error", err.Error())
	} else {
		accessible = true
		n := len(entries)
		result.TargetAccessible = &accessible
		result.TargetEntries = &n
		log.Success("target directory listed",
			"protocol", string(profile.Protocol), "path", profile.RemotePath, "entries", n)
	}

	return result, nil
}

// recommend derives the single recommended protocol: a protocol that
// reached the target directory beats one that merely connected, FTP
// beats FTPS when it needed no fallback, and FTP beats SFTP unless only
// SFTP reached the target.
func recommend(ftpRes, sftpRes *ProbeResult) Recommendation {
	ftpTarget := ftpRes.reachedTarget()
	sftpTarget := sftpRes.reachedTarget()

	switch {
	case ftpTarget && sftpTarget:
		return Recommendation{
			Protocol: ftpRes.Protocol,
			Reasoning: fmt.Sprintf("both %s and sftp reached the target directory; %s preferred as the simpler, more broadly supported protocol",
				ftpRes.Protocol, ftpRes.Protocol),
		}
	case ftpTarget:
		return Recommendation{
			Protocol:  ftpRes.Protocol,
			Reasoning: fmt.Sprintf("%s connected and reached the target directory", ftpRes.Protocol),
		}
	case sftpTarget:
		return Recommendation{
			Protocol:  ProtocolSFTP,
			Reasoning: "only sftp reached the target directory",
		}
	case ftpRes.Connected:
		return Recommendation{
			Protocol:  ftpRes.Protocol,
			Reasoning: fmt.Sprintf("%s connected but the target directory was not accessible; check the remote path", ftpRes.Protocol),
		}
	case sftpRes.Connected:
		return Recommendation{
			Protocol:  ProtocolSFTP,
			Reasoning: "only sftp connected; the target directory was not accessible",
		}
	default:
		return Recommendation{
			Protocol:  ProtocolNone,
			Reasoning: "no protocol could connect; check host, port and credentials",
		}
	}
}

func applyOverrides(cfg config.SAPConfig, ov HostOverrides) config.SAPConfig {
	if ov.Host != "" {
		cfg.Host = ov.Host
		cfg.FTP.Host = ""
		cfg.SFTP.Host = ""
	}
	if ov.Port != 0 {
		cfg.Port = ov.Port
		cfg.FTP.Port = 0
		cfg.SFTP.Port = 0
	}
	if ov.Username != "" {
		cfg.Username = ov.Username
		cfg.FTP.Username = ""
		cfg.SFTP.Username = ""
	}
	if ov.Password != "" {
		cfg.Password = ov.Password
		cfg.FTP.Password = ""
		cfg.SFTP.Password = ""
	}
	if ov.RemotePath != "" {
		cfg.RemotePath = ov.RemotePath
		cfg.FTP.RemotePath = ""
		cfg.SFTP.RemotePath = ""
	}
	return cfg
}
