package cli

import (
	"strings"
	"time"

	"github.com/rcliao/agent-chronicle/internal/query"
	"github.com/spf13/cobra"
)

func init() {
	insights := &cobra.Command{
		Use:   "insights",
		Short: "Recall insights by domain and intensity",
		Run:   runInsights,
	}
	insights.Flags().StringP("domain", "d", "", "Knowledge domain (default: all)")
	insights.Flags().Float64("min-intensity", 0, "Minimum intensity")

	mistakes := &cobra.Command{
		Use:   "mistakes [action]",
		Short: "Check past mistakes before acting",
		Run:   runMistakes,
	}
	mistakes.Flags().String("context", "", "Situation context to match")

	values := &cobra.Command{
		Use:   "values",
		Short: "List observed values and principles",
		Run:   runValues,
	}

	spiral := &cobra.Command{
		Use:   "spiral [session]",
		Short: "Show what a session builds on",
		Args:  cobra.ExactArgs(1),
		Run:   runSpiral,
	}

	search := &cobra.Command{
		Use:   "search [query]",
		Short: "Search every chronicle partition",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}
	search.Flags().StringP("type", "t", "", "Comma-separated record types")
	search.Flags().String("since", "", "Lower time bound (RFC3339)")
	search.Flags().String("until", "", "Upper time bound (RFC3339)")

	recent := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recent records across all partitions",
		Run:   runRecent,
	}
	recent.Flags().IntP("limit", "n", 10, "Maximum records")

	RootCmd.AddCommand(insights, mistakes, values, spiral, search, recent)
}

func runInsights(cmd *cobra.Command, args []string) {
	domain, _ := cmd.Flags().GetString("domain")
	min, _ := cmd.Flags().GetFloat64("min-intensity")

	results, err := openEngine().RecallInsights(domain, min)
	if err != nil {
		exitErr("insights", err)
	}
	printJSON(results)
}

func runMistakes(cmd *cobra.Command, args []string) {
	context, _ := cmd.Flags().GetString("context")

	results, err := openEngine().CheckMistakes(strings.Join(args, " "), context)
	if err != nil {
		exitErr("mistakes", err)
	}
	printJSON(results)
}

func runValues(cmd *cobra.Command, args []string) {
	results, err := openEngine().Values()
	if err != nil {
		exitErr("values", err)
	}
	printJSON(results)
}

func runSpiral(cmd *cobra.Command, args []string) {
	ctx, err := openEngine().SpiralContext(args[0])
	if err != nil {
		exitErr("spiral", err)
	}
	printJSON(ctx)
}

func runSearch(cmd *cobra.Command, args []string) {
	typeStr, _ := cmd.Flags().GetString("type")
	sinceStr, _ := cmd.Flags().GetString("since")
	untilStr, _ := cmd.Flags().GetString("until")

	p := query.SearchParams{Query: strings.Join(args, " "), Types: csvList(typeStr)}
	var err error
	if sinceStr != "" {
		if p.Since, err = time.Parse(time.RFC3339, sinceStr); err != nil {
			exitErr("parse --since", err)
		}
	}
	if untilStr != "" {
		if p.Until, err = time.Parse(time.RFC3339, untilStr); err != nil {
			exitErr("parse --until", err)
		}
	}

	results, err := openEngine().Search(p)
	if err != nil {
		exitErr("search", err)
	}
	printJSON(results)
}

func runRecent(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	results, err := openEngine().Recent(limit)
	if err != nil {
		exitErr("recent", err)
	}
	printJSON(results)
}
