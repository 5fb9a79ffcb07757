package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"github.com/devaloi/courier/internal/domain"
	"github.com/devaloi/courier/internal/identity"
)

func main() {
	flags := pflag.NewFlagSet("loadtest", pflag.ContinueOnError)
	url := flags.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	clients := flags.IntP("clients", "c", 10, "Number of concurrent users")
	messages := flags.IntP("messages", "m", 10, "Messages per user")
	secret := flags.String("secret", os.Getenv("SESSION_SECRET"), "Session signing secret shared with the server")
	issuer := flags.String("issuer", "courier", "Session token issuer")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatal(err)
	}
	if *secret == "" {
		log.Fatal("--secret or SESSION_SECRET is required")
	}
	if *clients < 2 {
		log.Fatal("--clients must be at least 2")
	}

	log.Printf("Load test: %d users, %d private messages each", *clients, *messages)

	sessions := identity.NewIssuer(*secret, *issuer, time.Hour)

	var (
		connected int64
		sent      int64
		received  int64
		failures  int64
		pending   sync.Map
		latencies []time.Duration
		latencyMu sync.Mutex
		wg        sync.WaitGroup
	)

	start := time.Now()

	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			me := domain.User{ID: fmt.Sprintf("user_%d", id)}
			peer := fmt.Sprintf("user_%d", (id+1)%*clients)
			token, _, err := sessions.Issue(me)
			if err != nil {
				atomic.AddInt64(&failures, 1)
				return
			}

			header := http.Header{"Authorization": {"Bearer " + token}}
			conn, _, err := websocket.DefaultDialer.Dial(*url, header)
			if err != nil {
				atomic.AddInt64(&failures, 1)
				log.Printf("%s: dial error: %v", me.ID, err)
				return
			}
			defer conn.Close()
			atomic.AddInt64(&connected, 1)

			done := make(chan struct{})
			go func() {
				defer close(done)
				for {
					_, data, err := conn.ReadMessage()
					if err != nil {
						return
					}
					atomic.AddInt64(&received, 1)
					var ev domain.ResponseEvent
					if json.Unmarshal(data, &ev) != nil {
						continue
					}
					if ev.Type == domain.EvtError {
						atomic.AddInt64(&failures, 1)
						continue
					}
					// The sender's own room echoes every message it sends.
					if ev.SenderID != me.ID {
						continue
					}
					if at, ok := pending.LoadAndDelete(ev.Content); ok {
						latencyMu.Lock()
						latencies = append(latencies, time.Since(at.(time.Time)))
						latencyMu.Unlock()
					}
				}
			}()

			if err := conn.WriteJSON(domain.JoinEvent{Type: domain.EvtJoin, Room: me.ID}); err != nil {
				atomic.AddInt64(&failures, 1)
				return
			}
			time.Sleep(100 * time.Millisecond)

			for j := 0; j < *messages; j++ {
				content := fmt.Sprintf("msg %d from %s", j, me.ID)
				pending.Store(content, time.Now())
				err := conn.WriteJSON(domain.PrivateMessageEvent{
					Type:       domain.EvtPrivateMessage,
					SenderID:   me.ID,
					ReceiverID: peer,
					Content:    content,
				})
				if err != nil {
					atomic.AddInt64(&failures, 1)
					return
				}
				atomic.AddInt64(&sent, 1)
				time.Sleep(10 * time.Millisecond)
			}

			// Wait a bit for remaining messages.
			time.Sleep(500 * time.Millisecond)
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			<-done
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	fmt.Println("\n=== Load Test Results ===")
	fmt.Printf("Duration:    %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Users:       %d connected\n", connected)
	fmt.Printf("Sent:        %d messages\n", sent)
	fmt.Printf("Received:    %d frames (expect %d)\n", received, 2*sent)
	fmt.Printf("Errors:      %d\n", failures)
	if len(latencies) > 0 {
		fmt.Printf("Echo p50:    %s\n", percentile(latencies, 50))
		fmt.Printf("Echo p95:    %s\n", percentile(latencies, 95))
		fmt.Printf("Echo p99:    %s\n", percentile(latencies, 99))
	}
	fmt.Printf("Throughput:  %.0f msgs/sec\n", float64(sent)/elapsed.Seconds())
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
