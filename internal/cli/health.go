package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/linkeLi0421/Epstein-Rag/internal/service"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show system health",
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func statusMark(status string) string {
	switch status {
	case service.StatusHealthy:
		return "✓"
	case service.StatusDegraded:
		return "!"
	default:
		return "✗"
	}
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	summary, err := apiClient.Health(ctx)
	if err != nil {
		return fmt.Errorf("fetch health: %w", err)
	}

	uptime := time.Duration(summary.UptimeSeconds * float64(time.Second)).Round(time.Second)
	fmt.Printf("%s %s (up %s)\n\n", statusMark(summary.Status), summary.Status, uptime)

	for _, c := range summary.Components {
		fmt.Printf("  %s %-16s %-10s %s\n", statusMark(c.Status), c.Name, c.Status, c.Details)
	}

	fmt.Printf("\n  Observers: %d  Goroutines: %d  Heap: %.1f MiB\n",
		summary.Resources.ConnectedObservers,
		summary.Resources.Goroutines,
		float64(summary.Resources.HeapAllocBytes)/(1024*1024))

	return nil
}
