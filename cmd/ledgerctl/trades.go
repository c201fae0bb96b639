package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"aisociety.ai/internal/economy/market"
)

func tradesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List completed trades, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			agent, _ := cmd.Flags().GetString("agent")
			limit, _ := cmd.Flags().GetInt("limit")

			l, err := openLedger()
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()
			ctx := context.Background()

			var trades []market.Record
			switch {
			case kind != "":
				trades, err = l.TradesForKind(ctx, kind, limit)
			case agent != "":
				trades, err = l.TradesForAgent(ctx, agent, limit)
			default:
				trades, err = l.RecentTrades(ctx, limit)
			}
			if err != nil {
				return err
			}
			if len(trades) == 0 {
				fmt.Println("no trades recorded")
				return nil
			}

			fmt.Printf("%-10s %-8s %8s %8s %9s %7s  %-15s %s\n",
				"TRADE", "KIND", "QTY", "PRICE", "TOTAL", "FEE", "WHEN", "SELLER -> BUYER")
			for _, t := range trades {
				fmt.Printf("%-10s %-8s %8.1f %8.2f %9.2f %7.2f  %-15s %s -> %s\n",
					shortID(t.ID), t.Kind, t.Quantity, t.PricePerUnit, t.Total, t.Fee,
					humanize.Time(t.At), t.SellerID, t.BuyerID)
			}
			return nil
		},
	}
	cmd.Flags().StringP("kind", "k", "", "filter by resource kind")
	cmd.Flags().StringP("agent", "a", "", "filter by agent (seller or buyer)")
	cmd.Flags().IntP("limit", "n", 20, "max trades to show")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Aggregate trade activity per resource kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger()
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()

			totals, err := l.KindTotals(context.Background())
			if err != nil {
				return err
			}
			if len(totals) == 0 {
				fmt.Println("no trades recorded")
				return nil
			}

			bold := color.New(color.Bold)
			bold.Printf("%-8s %8s %12s %12s %10s\n", "KIND", "TRADES", "VOLUME", "VALUE", "FEES")
			var trades int
			var volume, value, fees float64
			for _, t := range totals {
				fmt.Printf("%-8s %8s %12s %12s %10s\n",
					t.Kind,
					humanize.Comma(int64(t.Trades)),
					humanize.CommafWithDigits(t.Volume, 1),
					humanize.CommafWithDigits(t.Value, 2),
					humanize.CommafWithDigits(t.Fees, 2))
				trades += t.Trades
				volume += t.Volume
				value += t.Value
				fees += t.Fees
			}
			bold.Printf("%-8s %8s %12s %12s %10s\n",
				"total",
				humanize.Comma(int64(trades)),
				humanize.CommafWithDigits(volume, 1),
				humanize.CommafWithDigits(value, 2),
				humanize.CommafWithDigits(fees, 2))
			return nil
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
