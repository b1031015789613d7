// Command escrowctl is the coordinator's command-line entrypoint:
// operator utilities (database encryption key splitting, audit chain
// verification, offline arbitration dry-runs) that sit alongside the
// HTTP API (a separate collaborator process) rather than
// replacing it.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/yourusername/xmrescrow/internal/arbitration"
	"github.com/yourusername/xmrescrow/internal/audit"
	"github.com/yourusername/xmrescrow/internal/cli"
	"github.com/yourusername/xmrescrow/internal/config"
	"github.com/yourusername/xmrescrow/internal/cryptoutil"
	"github.com/yourusername/xmrescrow/internal/repository"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "shamir-split":
		err = runShamirSplit(os.Args[2:])
	case "shamir-reconstruct":
		err = runShamirReconstruct(os.Args[2:])
	case "verify-audit":
		err = runVerifyAudit(os.Args[2:])
	case "arbitrate":
		err = runArbitrate(os.Args[2:])
	case "version":
		fmt.Printf("escrowctl v%s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		emit(cli.Fail(err))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("escrowctl - operator utilities for the escrow coordinator")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  escrowctl shamir-split <threshold> <shares>        split DB_ENCRYPTION_KEY (hex, stdin) into shares")
	fmt.Println("  escrowctl shamir-reconstruct <share> [<share>...]  reconstruct a key (hex shares) from stdin args")
	fmt.Println("  escrowctl verify-audit <db-path>                   walk the audit log and report tamper status")
	fmt.Println("  escrowctl arbitrate <db-path> <escrow-id>          dry-run the arbitration engine over a dispute")
	fmt.Println("  escrowctl version                                  show version information")
	fmt.Println("  escrowctl help                                     show this help message")
	fmt.Println()
	fmt.Println("Set ESCROWCTL_MODE=dashboard for single-line JSON output on stdout.")
}

// emit writes resp as human-readable text in interactive mode, or as a
// single JSON line on stdout in dashboard mode.
func emit(resp cli.Response) {
	if cli.IsDashboard() {
		_ = cli.WriteJSON(resp)
		return
	}
	if resp.Success {
		pretty, _ := json.MarshalIndent(resp.Data, "", "  ")
		fmt.Println(string(pretty))
		return
	}
	fmt.Printf("error [%s]: %s\n", resp.Error.Kind, resp.Error.Message)
}

func runShamirSplit(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: escrowctl shamir-split <threshold> <shares>")
	}
	threshold, shares := 0, 0
	if _, err := fmt.Sscanf(args[0], "%d", &threshold); err != nil {
		return fmt.Errorf("invalid threshold: %w", err)
	}
	if _, err := fmt.Sscanf(args[1], "%d", &shares); err != nil {
		return fmt.Errorf("invalid share count: %w", err)
	}

	secretHex := os.Getenv("DB_ENCRYPTION_KEY")
	if secretHex == "" {
		return fmt.Errorf("DB_ENCRYPTION_KEY must be set to the hex-encoded key to split")
	}
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return fmt.Errorf("DB_ENCRYPTION_KEY is not valid hex: %w", err)
	}

	parts, err := cryptoutil.SplitKey(secret, shares, threshold)
	if err != nil {
		return err
	}

	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = hex.EncodeToString(p)
	}
	emit(cli.Ok(map[string]interface{}{"threshold": threshold, "shares": out}))
	return nil
}

func runShamirReconstruct(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: escrowctl shamir-reconstruct <share> [<share>...]")
	}
	shares := make([][]byte, len(args))
	for i, a := range args {
		raw, err := hex.DecodeString(a)
		if err != nil {
			return fmt.Errorf("share %d is not valid hex: %w", i, err)
		}
		shares[i] = raw
	}

	secret, err := cryptoutil.ReconstructKey(shares)
	if err != nil {
		return err
	}
	emit(cli.Ok(map[string]string{"db_encryption_key": hex.EncodeToString(secret)}))
	return nil
}

func openRepository(dbPath string) (*repository.Repository, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return repository.Open(dbPath, cfg.DBEncryptionKey, cryptoutil.EncryptField, cryptoutil.DecryptField)
}

func runVerifyAudit(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: escrowctl verify-audit <db-path>")
	}
	repo, err := openRepository(args[0])
	if err != nil {
		return err
	}
	defer repo.Close()

	report, err := audit.New(repo).VerifyIntegrity(context.Background())
	if err != nil {
		return err
	}
	emit(cli.Ok(report))
	return nil
}

func runArbitrate(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: escrowctl arbitrate <db-path> <escrow-id>")
	}
	repo, err := openRepository(args[0])
	if err != nil {
		return err
	}
	defer repo.Close()

	ctx := context.Background()
	escrow, err := repo.GetEscrow(ctx, args[1])
	if err != nil {
		return err
	}
	if escrow == nil {
		return fmt.Errorf("escrow %s does not exist", args[1])
	}
	if escrow.Dispute == nil {
		return fmt.Errorf("escrow %s has no open dispute", args[1])
	}

	weightsPath := os.Getenv("ARBITRATION_WEIGHTS_PATH")
	weights, err := config.LoadArbitrationWeights(weightsPath)
	if err != nil {
		return err
	}

	resolution, err := arbitration.New(weights).Resolve(escrow.Dispute)
	if err != nil {
		return err
	}
	emit(cli.Ok(resolution))
	return nil
}
