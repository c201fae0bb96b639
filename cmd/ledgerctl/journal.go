package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"

	"aisociety.ai/internal/protocol"
)

func journalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect JSONL market journals",
	}
	cmd.AddCommand(journalCatCmd())
	return cmd
}

func journalCatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat <file>",
		Short: "Decode a market journal file (.jsonl or .jsonl.zst)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetBool("raw")

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			if fi, err := f.Stat(); err == nil {
				fmt.Fprintf(os.Stderr, "%s (%s)\n", args[0], humanize.Bytes(uint64(fi.Size())))
			}

			var r io.Reader = f
			if strings.HasSuffix(args[0], ".zst") {
				dec, err := zstd.NewReader(f)
				if err != nil {
					return err
				}
				defer dec.Close()
				r = dec
			}

			sc := bufio.NewScanner(r)
			for sc.Scan() {
				line := sc.Text()
				if raw {
					fmt.Println(line)
					continue
				}
				var evt protocol.MarketEventMsg
				if err := json.Unmarshal([]byte(line), &evt); err != nil {
					fmt.Printf("? %s\n", line)
					continue
				}
				printEvent(evt)
			}
			return sc.Err()
		},
	}
	cmd.Flags().Bool("raw", false, "print raw JSON lines")
	return cmd
}

func printEvent(evt protocol.MarketEventMsg) {
	stamp := evt.At.Format("15:04:05.000")
	switch {
	case evt.Trade != nil:
		t := evt.Trade
		fmt.Printf("%s %-26s %6.1f %-8s @ %7.2f = %9.2f fee %5.2f  %s -> %s\n",
			stamp, eventColor(evt.Event), t.Quantity, t.Kind, t.PricePerUnit,
			t.Total, t.Fee, t.SellerID, t.BuyerID)
	case evt.Offer != nil:
		o := evt.Offer
		fmt.Printf("%s %-26s %6.1f %-8s @ %7.2f (%s)  offer=%s seller=%s\n",
			stamp, eventColor(evt.Event), o.Quantity, o.Kind, o.PricePerUnit,
			statusColor(o.Status), shortID(o.ID), o.SellerID)
	case evt.Event == "price_changed":
		fmt.Printf("%s %-26s %s -> %s\n", stamp, eventColor(evt.Event), evt.OldStrategy, evt.NewStrategy)
	default:
		fmt.Printf("%s %-26s kind=%s\n", stamp, eventColor(evt.Event), evt.Kind)
	}
}
