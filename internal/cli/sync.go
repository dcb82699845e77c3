package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	sync := &cobra.Command{
		Use:   "sync",
		Short: "Tiered sync between the vault and a remote backend",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show pending queue and backend state",
		Run:   runSyncStatus,
	}

	now := &cobra.Command{
		Use:   "now",
		Short: "Push the pending queue to the backend",
		Run:   runSyncNow,
	}

	conflicts := &cobra.Command{
		Use:   "conflicts",
		Short: "List unresolved sync conflicts",
		Run:   runSyncConflicts,
	}

	resolve := &cobra.Command{
		Use:   "resolve [key]",
		Short: "Resolve a conflict by choosing a side",
		Args:  cobra.ExactArgs(1),
		Run:   runSyncResolve,
	}
	resolve.Flags().String("keep", "local", "Which side to keep: local or remote")
	resolve.Flags().String("note", "", "Resolution note")

	sync.AddCommand(status, now, conflicts, resolve)
	RootCmd.AddCommand(sync)
}

func runSyncStatus(cmd *cobra.Command, args []string) {
	h, err := openHandler()
	if err != nil {
		exitErr("open vault", err)
	}
	printJSON(h.Router().Status())
}

func runSyncNow(cmd *cobra.Command, args []string) {
	h, err := openHandler()
	if err != nil {
		exitErr("open vault", err)
	}
	result, err := h.Router().Sync(cmd.Context(), h.ReadRaw)
	if err != nil {
		exitErr("sync now", err)
	}
	printJSON(result)
}

func runSyncConflicts(cmd *cobra.Command, args []string) {
	h, err := openHandler()
	if err != nil {
		exitErr("open vault", err)
	}
	conflicts, err := h.Router().Conflicts()
	if err != nil {
		exitErr("sync conflicts", err)
	}
	printJSON(conflicts)
}

func runSyncResolve(cmd *cobra.Command, args []string) {
	keep, _ := cmd.Flags().GetString("keep")
	note, _ := cmd.Flags().GetString("note")

	h, err := openHandler()
	if err != nil {
		exitErr("open vault", err)
	}
	if err := h.Router().ResolveConflict(args[0], note, keep); err != nil {
		exitErr("sync resolve", err)
	}
	printJSON(map[string]string{"status": "resolved", "key": args[0], "keep": keep})
}
