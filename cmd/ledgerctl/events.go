package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"aisociety.ai/internal/persistence/ledgerdb"
)

func offersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offers",
		Short: "Show offer lifecycle events",
		RunE: func(cmd *cobra.Command, args []string) error {
			offerID, _ := cmd.Flags().GetString("offer")
			limit, _ := cmd.Flags().GetInt("limit")

			l, err := openLedger()
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()
			ctx := context.Background()

			var events []ledgerdb.OfferEvent
			if offerID != "" {
				events, err = l.OfferHistory(ctx, offerID)
			} else {
				events, err = l.RecentOfferEvents(ctx, limit)
			}
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println("no offer events recorded")
				return nil
			}

			fmt.Printf("%-26s %-10s %-8s %8s %8s %-10s %-15s %s\n",
				"EVENT", "OFFER", "KIND", "QTY", "PRICE", "STATUS", "WHEN", "SELLER")
			for _, ev := range events {
				fmt.Printf("%-26s %-10s %-8s %8.1f %8.2f %-10s %-15s %s\n",
					eventColor(ev.Event), shortID(ev.OfferID), ev.Kind, ev.Quantity,
					ev.PricePerUnit, statusColor(ev.Status), humanize.Time(ev.At), ev.SellerID)
			}
			return nil
		},
	}
	cmd.Flags().StringP("offer", "o", "", "show the full lifecycle of one offer")
	cmd.Flags().IntP("limit", "n", 20, "max events to show")
	return cmd
}

func stockpileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stockpile <stockpile-id>",
		Short: "Show a stockpile's transaction history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			l, err := openLedger()
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()

			txns, err := l.StockpileHistory(context.Background(), args[0], limit)
			if err != nil {
				return err
			}
			if len(txns) == 0 {
				fmt.Println("no transactions recorded")
				return nil
			}

			fmt.Printf("%-10s %-10s %-8s %8s %10s\n", "ACTION", "AGENT", "KIND", "QTY", "SIM TIME")
			for _, t := range txns {
				action := "withdraw"
				if t.IsDeposit {
					action = "deposit"
				}
				fmt.Printf("%-10s %-10s %-8s %8.1f %10.1f\n",
					action, t.AgentID, t.Kind, t.Quantity, t.TS)
			}
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "max transactions to show")
	return cmd
}
