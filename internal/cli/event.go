package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	event := &cobra.Command{
		Use:   "event [type]",
		Short: "Append an event to a session's daily partition",
		Args:  cobra.ExactArgs(1),
		Run:   runEvent,
	}
	event.Flags().StringP("session", "s", "", "Session ID (required)")
	event.Flags().StringP("payload", "p", "", "JSON payload")
	event.MarkFlagRequired("session")

	snapshot := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage session state snapshots",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Snapshot the current session state",
		Run:   runSnapshotCreate,
	}
	create.Flags().StringP("session", "s", "", "Session ID (required)")
	create.Flags().String("state", "", "JSON state document (required)")
	create.MarkFlagRequired("session")
	create.MarkFlagRequired("state")

	latest := &cobra.Command{
		Use:   "latest",
		Short: "Show the most recent snapshot",
		Run:   runSnapshotLatest,
	}
	latest.Flags().StringP("session", "s", "", "Session ID (default: any session)")

	snapshot.AddCommand(create, latest)
	RootCmd.AddCommand(event, snapshot)
}

func parsePayload(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	return payload, nil
}

func runEvent(cmd *cobra.Command, args []string) {
	session, _ := cmd.Flags().GetString("session")
	raw, _ := cmd.Flags().GetString("payload")

	payload, err := parsePayload(raw)
	if err != nil {
		exitErr("event", err)
	}
	id, err := openStore().Append(args[0], payload, session)
	if err != nil {
		exitErr("event", err)
	}
	printJSON(map[string]string{"event_id": id})
}

func runSnapshotCreate(cmd *cobra.Command, args []string) {
	session, _ := cmd.Flags().GetString("session")
	raw, _ := cmd.Flags().GetString("state")

	state, err := parsePayload(raw)
	if err != nil {
		exitErr("snapshot create", err)
	}
	id, err := openStore().CreateSnapshot(session, state)
	if err != nil {
		exitErr("snapshot create", err)
	}
	printJSON(map[string]string{"snapshot_id": id})
}

func runSnapshotLatest(cmd *cobra.Command, args []string) {
	session, _ := cmd.Flags().GetString("session")

	snap, err := openStore().GetLatestSnapshot(session)
	if err != nil {
		exitErr("snapshot latest", err)
	}
	if snap == nil {
		printJSON(map[string]string{"status": "none"})
		return
	}
	printJSON(snap)
}
