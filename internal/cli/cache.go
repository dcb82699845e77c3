package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cache := &cobra.Command{
		Use:   "cache",
		Short: "Manage the derived keyword index",
	}

	rebuild := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the index from the chronicle partitions",
		Run:   runCacheRebuild,
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Run:   runCacheStats,
	}

	lookup := &cobra.Command{
		Use:   "lookup [keyword]",
		Short: "Look up files containing a keyword",
		Args:  cobra.ExactArgs(1),
		Run:   runCacheLookup,
	}

	cache.AddCommand(rebuild, stats, lookup)
	RootCmd.AddCommand(cache)
}

func runCacheRebuild(cmd *cobra.Command, args []string) {
	stats, err := openBuilder().Rebuild()
	if err != nil {
		exitErr("cache rebuild", err)
	}
	printJSON(stats)
}

func runCacheStats(cmd *cobra.Command, args []string) {
	stats, err := openBuilder().Stats()
	if err != nil {
		exitErr("cache stats", err)
	}
	printJSON(stats)
}

func runCacheLookup(cmd *cobra.Command, args []string) {
	files, err := openBuilder().Search(args[0])
	if err != nil {
		exitErr("cache lookup", err)
	}
	printJSON(files)
}
