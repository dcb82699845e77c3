package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	record := &cobra.Command{
		Use:   "record",
		Short: "Record chronicle entries",
	}

	insight := &cobra.Command{
		Use:   "insight [content]",
		Short: "Record an insight",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRecordInsight,
	}
	insight.Flags().StringP("domain", "d", "", "Knowledge domain (required)")
	insight.Flags().StringP("session", "s", "", "Session ID (required)")
	insight.Flags().Float64P("intensity", "i", 0.5, "Significance in [0,1]")
	insight.Flags().String("context", "", "Where the insight arose")
	insight.Flags().String("builds-on", "", "Comma-separated prior record IDs")
	insight.MarkFlagRequired("domain")
	insight.MarkFlagRequired("session")

	learning := &cobra.Command{
		Use:   "learning [what-failed]",
		Short: "Record a mistake and its correction",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRecordLearning,
	}
	learning.Flags().StringP("session", "s", "", "Session ID (required)")
	learning.Flags().String("why", "", "Why it failed (required)")
	learning.Flags().String("correction", "", "What to do instead (required)")
	learning.Flags().String("prevents", "", "Comma-separated situations this prevents")
	learning.MarkFlagRequired("session")
	learning.MarkFlagRequired("why")
	learning.MarkFlagRequired("correction")

	transformation := &cobra.Command{
		Use:   "transformation [what-changed]",
		Short: "Record a shift in understanding",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRecordTransformation,
	}
	transformation.Flags().StringP("session", "s", "", "Session ID (required)")
	transformation.Flags().String("why", "", "What drove the change (required)")
	transformation.Flags().Float64P("intensity", "i", 0.5, "Significance in [0,1]")
	transformation.MarkFlagRequired("session")
	transformation.MarkFlagRequired("why")

	value := &cobra.Command{
		Use:   "value [principle]",
		Short: "Record an observed value or principle",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRecordValue,
	}
	value.Flags().StringP("session", "s", "", "Session ID (required)")
	value.Flags().String("evidence", "", "Observed behavior supporting the principle (required)")
	value.Flags().StringP("weight", "w", "situational", "Weight: foundational, important, situational")
	value.MarkFlagRequired("session")
	value.MarkFlagRequired("evidence")

	record.AddCommand(insight, learning, transformation, value)
	RootCmd.AddCommand(record)
}

func csvList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func runRecordInsight(cmd *cobra.Command, args []string) {
	domain, _ := cmd.Flags().GetString("domain")
	session, _ := cmd.Flags().GetString("session")
	intensity, _ := cmd.Flags().GetFloat64("intensity")
	context, _ := cmd.Flags().GetString("context")
	buildsOn, _ := cmd.Flags().GetString("builds-on")

	id, err := openStore().RecordInsight(strings.Join(args, " "), domain, session, intensity, context, csvList(buildsOn))
	if err != nil {
		exitErr("record insight", err)
	}
	printJSON(map[string]string{"insight_id": id})
}

func runRecordLearning(cmd *cobra.Command, args []string) {
	session, _ := cmd.Flags().GetString("session")
	why, _ := cmd.Flags().GetString("why")
	correction, _ := cmd.Flags().GetString("correction")
	prevents, _ := cmd.Flags().GetString("prevents")

	id, err := openStore().RecordLearning(strings.Join(args, " "), why, correction, session, csvList(prevents))
	if err != nil {
		exitErr("record learning", err)
	}
	printJSON(map[string]string{"learning_id": id})
}

func runRecordTransformation(cmd *cobra.Command, args []string) {
	session, _ := cmd.Flags().GetString("session")
	why, _ := cmd.Flags().GetString("why")
	intensity, _ := cmd.Flags().GetFloat64("intensity")

	id, err := openStore().RecordTransformation(strings.Join(args, " "), why, session, intensity)
	if err != nil {
		exitErr("record transformation", err)
	}
	printJSON(map[string]string{"transformation_id": id})
}

func runRecordValue(cmd *cobra.Command, args []string) {
	session, _ := cmd.Flags().GetString("session")
	evidence, _ := cmd.Flags().GetString("evidence")
	weight, _ := cmd.Flags().GetString("weight")

	if err := openStore().RecordValue(strings.Join(args, " "), evidence, weight, session); err != nil {
		exitErr("record value", err)
	}
	printJSON(map[string]string{"status": "recorded"})
}
