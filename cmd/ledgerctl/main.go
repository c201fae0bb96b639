package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"aisociety.ai/internal/economy/market"
	"aisociety.ai/internal/persistence/ledgerdb"
)

var dbPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Inspect the exchanged trade ledger and journals",
		Long: `ledgerctl reads the SQLite ledger and JSONL journals written by
exchanged: completed trades, offer lifecycle events, and stockpile
transactions.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "./data/ledger.db", "path to the ledger database")

	rootCmd.AddCommand(tradesCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(offersCmd())
	rootCmd.AddCommand(stockpileCmd())
	rootCmd.AddCommand(journalCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openLedger() (*ledgerdb.Ledger, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("ledger %s: %w", dbPath, err)
	}
	return ledgerdb.Open(dbPath, 0)
}

func statusColor(status string) string {
	switch status {
	case string(market.StatusPending):
		return color.New(color.FgCyan).Sprint(status)
	case string(market.StatusPartial):
		return color.New(color.FgYellow).Sprint(status)
	case string(market.StatusAccepted):
		return color.New(color.FgHiGreen).Sprint(status)
	case string(market.StatusCancelled):
		return color.New(color.FgHiBlack).Sprint(status)
	case string(market.StatusExpired):
		return color.New(color.FgRed).Sprint(status)
	default:
		return status
	}
}

func eventColor(event string) string {
	switch event {
	case string(market.EventTradeCompleted):
		return color.New(color.FgHiGreen).Sprint(event)
	case string(market.EventOfferCreated):
		return color.New(color.FgCyan).Sprint(event)
	case string(market.EventOfferCancelled):
		return color.New(color.FgHiBlack).Sprint(event)
	case string(market.EventOfferExpired):
		return color.New(color.FgRed).Sprint(event)
	case string(market.EventPriceChanged):
		return color.New(color.FgHiMagenta).Sprint(event)
	default:
		return event
	}
}
