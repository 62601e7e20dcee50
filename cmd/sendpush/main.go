// sendpush injects a synthetic walkie-talkie push payload into the relay
// feed, for exercising a running walkied end to end.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	ws "nhooyr.io/websocket"
)

func main() {
	relay := flag.String("relay", "ws://localhost:9100/publish", "relay publish endpoint")
	channelID := flag.String("channel", "c1", "channel id")
	token := flag.String("token", "dev-token", "access token")
	uid := flag.String("uid", "42", "local participant id")
	name := flag.String("name", "Ada", "remote display name")
	ageSec := flag.Int("age", 0, "payload age in seconds (to test staleness)")
	flag.Parse()

	payload := map[string]string{
		"type":       "walkie_talkie",
		"channel_id": *channelID,
		"token":      *token,
		"uid":        *uid,
		"name":       *name,
		"sent_at":    strconv.FormatInt(time.Now().Add(-time.Duration(*ageSec)*time.Second).Unix(), 10),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, _, err := ws.Dial(ctx, *relay, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial relay: %v\n", err)
		os.Exit(1)
	}
	defer c.Close(ws.StatusNormalClosure, "done")

	b, _ := json.Marshal(payload)
	if err := c.Write(ctx, ws.MessageText, b); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("sent push for channel %s (age %ds)\n", *channelID, *ageSec)
}
