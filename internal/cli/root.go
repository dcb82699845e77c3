// Package cli implements the agent-chronicle CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rcliao/agent-chronicle/internal/chronicle"
	"github.com/rcliao/agent-chronicle/internal/config"
	"github.com/rcliao/agent-chronicle/internal/governance"
	"github.com/rcliao/agent-chronicle/internal/index"
	"github.com/rcliao/agent-chronicle/internal/memory"
	"github.com/rcliao/agent-chronicle/internal/query"
	"github.com/rcliao/agent-chronicle/internal/syncer"
	"github.com/rcliao/agent-chronicle/internal/vault"
	"github.com/spf13/cobra"
)

var rootFlag string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "agent-chronicle",
	Short: "Durable, file-backed chronicle for AI agents",
	Long:  "A CLI for durable agent memory. Plain files as the database, JSON out, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&rootFlag, "root", "r", "", "Vault root (default: $AGENT_CHRONICLE_ROOT or ~/.agent-chronicle)")
}

func vaultRoot() string {
	if rootFlag != "" {
		return rootFlag
	}
	if env := os.Getenv("AGENT_CHRONICLE_ROOT"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".agent-chronicle")
}

func openLayout() *vault.Layout {
	return vault.NewLayout(vaultRoot())
}

func openStore() *chronicle.Store {
	return chronicle.NewStore(openLayout())
}

func openEngine() *query.Engine {
	return query.NewEngine(openLayout())
}

func openBuilder() *index.Builder {
	return index.NewBuilder(openLayout())
}

// openHandler wires the full governed stack: config, controller,
// router, handler. The sync backend is nil until one is configured.
func openHandler() (*memory.Handler, error) {
	layout := openLayout()
	cfg, err := config.Load(layout.Root)
	if err != nil {
		return nil, err
	}
	ctrl, err := governance.NewController(layout.SpiralDir(), cfg.Governance)
	if err != nil {
		return nil, err
	}
	router, err := syncer.NewRouter(layout.SyncDir(), cfg.Tiers, nil, "")
	if err != nil {
		return nil, err
	}
	return memory.NewHandler(layout.MemoriesDir(), ctrl, router), nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}

// printPaused renders the pause surface for governed mutations. A
// pause is a successful outcome: exit status stays zero.
func printPaused(res *memory.WriteResult) {
	printJSON(map[string]any{"status": "paused", "token": res.Token})
}
