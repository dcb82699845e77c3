package cli

import (
	"strings"

	"github.com/rcliao/agent-chronicle/internal/memory"
	"github.com/spf13/cobra"
)

func init() {
	mem := &cobra.Command{
		Use:   "mem",
		Short: "Governed memory operations",
	}

	create := &cobra.Command{
		Use:   "create [key]",
		Short: "Create a memory entry (may pause for review)",
		Args:  cobra.ExactArgs(1),
		Run:   runMemCreate,
	}
	create.Flags().StringP("content", "c", "", "JSON content (required)")
	create.MarkFlagRequired("content")

	update := &cobra.Command{
		Use:   "update [key]",
		Short: "Update a memory entry (may pause for review)",
		Args:  cobra.ExactArgs(1),
		Run:   runMemUpdate,
	}
	update.Flags().StringP("content", "c", "", "JSON content (required)")
	update.MarkFlagRequired("content")

	read := &cobra.Command{
		Use:   "read [key]",
		Short: "Read a memory entry",
		Args:  cobra.ExactArgs(1),
		Run:   runMemRead,
	}

	del := &cobra.Command{
		Use:   "delete [key]",
		Short: "Request deletion (always pauses for confirmation)",
		Args:  cobra.ExactArgs(1),
		Run:   runMemDelete,
	}

	confirm := &cobra.Command{
		Use:   "confirm-delete [key] [event-id]",
		Short: "Confirm a previously requested deletion",
		Args:  cobra.ExactArgs(2),
		Run:   runMemConfirmDelete,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List memory keys",
		Run:   runMemList,
	}
	list.Flags().StringP("prefix", "p", "", "Key prefix")

	search := &cobra.Command{
		Use:   "search [query]",
		Short: "Search memory entries",
		Args:  cobra.MinimumNArgs(1),
		Run:   runMemSearch,
	}
	search.Flags().StringP("tier", "t", "", "Namespace to search (default: experiential and relational)")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show memory, governance and sync status",
		Run:   runMemStatus,
	}

	mem.AddCommand(create, update, read, del, confirm, list, search, status)
	RootCmd.AddCommand(mem)
}

func runMemWrite(cmd *cobra.Command, key, action string) {
	raw, _ := cmd.Flags().GetString("content")
	content, err := parsePayload(raw)
	if err != nil {
		exitErr("mem "+action, err)
	}

	h, err := openHandler()
	if err != nil {
		exitErr("open vault", err)
	}
	var res *memory.WriteResult
	if action == "create" {
		res, err = h.Create(key, content)
	} else {
		res, err = h.Update(key, content)
	}
	if err != nil {
		exitErr("mem "+action, err)
	}
	if res.Paused {
		printPaused(res)
		return
	}
	printJSON(map[string]string{"ref": res.Ref})
}

func runMemCreate(cmd *cobra.Command, args []string) { runMemWrite(cmd, args[0], "create") }
func runMemUpdate(cmd *cobra.Command, args []string) { runMemWrite(cmd, args[0], "update") }

func runMemRead(cmd *cobra.Command, args []string) {
	h, err := openHandler()
	if err != nil {
		exitErr("open vault", err)
	}
	entry, err := h.Read(args[0])
	if err != nil {
		exitErr("mem read", err)
	}
	if entry == nil {
		printJSON(map[string]string{"status": "none"})
		return
	}
	printJSON(entry)
}

func runMemDelete(cmd *cobra.Command, args []string) {
	h, err := openHandler()
	if err != nil {
		exitErr("open vault", err)
	}
	res, err := h.Delete(args[0])
	if err != nil {
		exitErr("mem delete", err)
	}
	printPaused(res)
}

func runMemConfirmDelete(cmd *cobra.Command, args []string) {
	h, err := openHandler()
	if err != nil {
		exitErr("open vault", err)
	}
	removed, err := h.ConfirmDelete(args[0], args[1])
	if err != nil {
		exitErr("mem confirm-delete", err)
	}
	printJSON(map[string]any{"removed": removed})
}

func runMemList(cmd *cobra.Command, args []string) {
	prefix, _ := cmd.Flags().GetString("prefix")

	h, err := openHandler()
	if err != nil {
		exitErr("open vault", err)
	}
	keys, err := h.ListKeys(prefix)
	if err != nil {
		exitErr("mem list", err)
	}
	printJSON(keys)
}

func runMemSearch(cmd *cobra.Command, args []string) {
	tier, _ := cmd.Flags().GetString("tier")

	h, err := openHandler()
	if err != nil {
		exitErr("open vault", err)
	}
	hits, err := h.Search(strings.Join(args, " "), tier)
	if err != nil {
		exitErr("mem search", err)
	}
	printJSON(hits)
}

func runMemStatus(cmd *cobra.Command, args []string) {
	h, err := openHandler()
	if err != nil {
		exitErr("open vault", err)
	}
	status, err := h.Status()
	if err != nil {
		exitErr("mem status", err)
	}
	printJSON(status)
}
