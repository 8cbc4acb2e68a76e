// sap-diag probes the configured SAP drop host over FTP and SFTP and
// prints which protocol the server should use. Operations tool; it
// never mutates remote state.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/translogix/invoicing/internal/config"
	"github.com/translogix/invoicing/internal/sap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config.yaml")
	host := flag.String("host", "", "Override host to probe")
	port := flag.Int("port", 0, "Override port")
	username := flag.String("user", "", "Override username")
	password := flag.String("password", "", "Override password (or set SAP_FTP_PASSWORD)")
	remotePath := flag.String("path", "", "Override remote drop directory")
	timeout := flag.Duration("timeout", 60*time.Second, "Overall probe timeout")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	_ = gotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	var logger *zap.Logger
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger = zap.NewNop()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	overrides := sap.HostOverrides{
		Host:       *host,
		Port:       *port,
		Username:   *username,
		Password:   *password,
		RemotePath: *remotePath,
	}

	fmt.Println("=== SAP Drop Folder Connectivity Diagnosis ===")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	report, log := sap.NewDiagnostics(cfg.SAP, logger).Diagnose(ctx, overrides)

	fmt.Println("\nSteps:")
	for _, entry := range log.Entries() {
		fmt.Printf("  [%s] %-7s %s\n",
			entry.Timestamp.Format("15:04:05.000"), entry.Level, entry.Message)
	}

	fmt.Println("\nResults:")
	printResult("ftp", report.FTP)
	printResult("sftp", report.SFTP)

	fmt.Printf("\nRecommendation: %s\n", report.Recommendation.Protocol)
	fmt.Printf("  %s\n", report.Recommendation.Reasoning)

	if report.Recommendation.Protocol == sap.ProtocolNone {
		os.Exit(2)
	}
}

func printResult(name string, result *sap.ProbeResult) {
	data, err := json.MarshalIndent(result, "  ", "  ")
	if err != nil {
		fmt.Printf("  %s: %v\n", name, err)
		return
	}
	fmt.Printf("  %s: %s\n", name, data)
}
