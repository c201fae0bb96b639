package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"

	"aisociety.ai/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8090/v1/feed", "feed url")
		name  = flag.String("name", "feedwatch", "client name")
		kinds = flag.String("kinds", "", "comma-separated kind filter (empty = all)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[feedwatch] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
	}
	for _, k := range strings.Split(*kinds, ",") {
		if k = strings.TrimSpace(k); k != "" {
			hello.Kinds = append(hello.Kinds, k)
		}
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME feed_id=%s active_offers=%d trades=%d strategy=%s",
				w.FeedID, w.Stats.ActiveOffers, w.Stats.TotalTrades, w.Stats.PricingStrategy)

		case protocol.TypeMarketEvent:
			var evt protocol.MarketEventMsg
			if err := json.Unmarshal(msg, &evt); err != nil {
				continue
			}
			logger.Printf("%s", describe(evt))

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				continue
			}
			logger.Printf("ERROR %s: %s", e.Code, e.Message)
		}
	}
}

func describe(evt protocol.MarketEventMsg) string {
	switch {
	case evt.Trade != nil:
		t := evt.Trade
		return fmt.Sprintf("%s %.1f %s @ %.2f = %.2f (fee %.2f) %s -> %s",
			evt.Event, t.Quantity, t.Kind, t.PricePerUnit, t.Total, t.Fee, t.SellerID, t.BuyerID)
	case evt.Offer != nil:
		o := evt.Offer
		return fmt.Sprintf("%s %.1f %s @ %.2f (%s) seller=%s",
			evt.Event, o.Quantity, o.Kind, o.PricePerUnit, o.Status, o.SellerID)
	case evt.OldStrategy != "" || evt.NewStrategy != "":
		return fmt.Sprintf("%s %s -> %s", evt.Event, evt.OldStrategy, evt.NewStrategy)
	default:
		return fmt.Sprintf("%s kind=%s", evt.Event, evt.Kind)
	}
}
