package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/linkeLi0421/Epstein-Rag/internal/client"
	"github.com/spf13/cobra"
)

var (
	queriesSearch string
	queriesClient string
	queriesLimit  int
	statsHours    int
)

var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "Browse the query log",
	Long: `Show recently logged retrieval queries, newest first.

Examples:
  ragctl queries                     # Latest queries
  ragctl queries --search epstein    # Full-text filter
  ragctl queries --client api        # Only API clients`,
	RunE: runQueries,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show query statistics",
	RunE:  runQueryStats,
}

func init() {
	queriesCmd.Flags().StringVar(&queriesSearch, "search", "", "filter by query text")
	queriesCmd.Flags().StringVar(&queriesClient, "client", "", "filter by client type")
	queriesCmd.Flags().IntVar(&queriesLimit, "limit", 20, "maximum entries to show")
	statsCmd.Flags().IntVar(&statsHours, "hours", 24, "statistics window in hours")
	queriesCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(queriesCmd)
}

func runQueries(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	list, err := apiClient.RecentQueries(ctx, client.RecentQueriesOptions{
		Search:     queriesSearch,
		ClientType: queriesClient,
		Limit:      queriesLimit,
	})
	if err != nil {
		return fmt.Errorf("list queries: %w", err)
	}

	if len(list.Queries) == 0 {
		fmt.Println("No queries logged")
		return nil
	}

	for _, entry := range list.Queries {
		ts := entry.Timestamp.Local().Format("01-02 15:04:05")
		text := entry.QueryText
		if !verbose && len(text) > 70 {
			text = text[:67] + "..."
		}
		fmt.Printf("%s  %6dms  %-8s %s\n", ts, entry.ResponseTimeMs, entry.ClientType, text)
		if verbose && len(entry.Sources) > 0 {
			for _, src := range entry.Sources {
				fmt.Printf("%s- %s %s\n", strings.Repeat(" ", 16), src.Source, src.Locator)
			}
		}
	}
	fmt.Printf("\n%d of %d queries shown\n", len(list.Queries), list.Total)

	return nil
}

func runQueryStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	stats, err := apiClient.QueryStats(ctx, statsHours)
	if err != nil {
		return fmt.Errorf("query stats: %w", err)
	}

	fmt.Printf("Queries in the last %dh: %d\n", statsHours, stats.TotalQueries)
	if stats.AvgResponseTimeMs != nil {
		fmt.Printf("Average response time: %.0fms\n", *stats.AvgResponseTimeMs)
	}

	if len(stats.ResponseTimeDistribution) > 0 {
		fmt.Println("\nResponse times:")
		for _, bucket := range stats.ResponseTimeDistribution {
			bar := strings.Repeat("#", int(bucket.Percentage/2))
			fmt.Printf("  %-8s %5.1f%% %s\n", bucket.Bucket, bucket.Percentage, bar)
		}
	}

	if len(stats.PopularQueries) > 0 {
		fmt.Println("\nMost frequent queries:")
		for _, pq := range stats.PopularQueries {
			text := pq.QueryText
			if len(text) > 60 {
				text = text[:57] + "..."
			}
			fmt.Printf("  %3dx %s\n", pq.Count, text)
		}
	}

	return nil
}
