package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	gov := &cobra.Command{
		Use:   "governance",
		Short: "Inspect and adjust the governance controller",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show controller state and recent decisions",
		Run:   runGovStatus,
	}
	status.Flags().IntP("recent", "n", 5, "Recent decisions to include")

	inherit := &cobra.Command{
		Use:   "inherit",
		Short: "Start a new controller identity inheriting restraint and protocols",
		Run:   runGovInherit,
	}

	restraint := &cobra.Command{
		Use:   "restraint",
		Short: "Adjust the restraint level by a delta",
		Run:   runGovRestraint,
	}
	restraint.Flags().Float64("delta", 0, "Signed adjustment (required)")
	restraint.Flags().String("reason", "", "Why the adjustment (required)")
	restraint.MarkFlagRequired("delta")
	restraint.MarkFlagRequired("reason")

	protocol := &cobra.Command{
		Use:   "protocol [name]",
		Short: "Activate or deactivate a protocol",
		Args:  cobra.ExactArgs(1),
		Run:   runGovProtocol,
	}
	protocol.Flags().Bool("off", false, "Deactivate instead of activate")

	gov.AddCommand(status, inherit, restraint, protocol)
	RootCmd.AddCommand(gov)
}

func runGovStatus(cmd *cobra.Command, args []string) {
	recent, _ := cmd.Flags().GetInt("recent")

	h, err := openHandler()
	if err != nil {
		exitErr("open vault", err)
	}
	view, err := h.Controller().View(recent)
	if err != nil {
		exitErr("governance status", err)
	}
	printJSON(view)
}

func runGovInherit(cmd *cobra.Command, args []string) {
	h, err := openHandler()
	if err != nil {
		exitErr("open vault", err)
	}
	state, err := h.Controller().Inherit()
	if err != nil {
		exitErr("governance inherit", err)
	}
	printJSON(state)
}

func runGovRestraint(cmd *cobra.Command, args []string) {
	delta, _ := cmd.Flags().GetFloat64("delta")
	reason, _ := cmd.Flags().GetString("reason")

	h, err := openHandler()
	if err != nil {
		exitErr("open vault", err)
	}
	if err := h.Controller().AdjustRestraint(delta, reason); err != nil {
		exitErr("governance restraint", err)
	}
	printJSON(map[string]any{"restraint_level": h.Controller().Restraint()})
}

func runGovProtocol(cmd *cobra.Command, args []string) {
	off, _ := cmd.Flags().GetBool("off")

	h, err := openHandler()
	if err != nil {
		exitErr("open vault", err)
	}
	ctrl := h.Controller()
	if off {
		err = ctrl.DeactivateProtocol(args[0])
	} else {
		err = ctrl.ActivateProtocol(args[0])
	}
	if err != nil {
		exitErr("governance protocol", err)
	}
	printJSON(map[string]any{"protocol": args[0], "active": !off})
}
