// Command pos-simulator generates synthetic POS receipt events onto the
// Kafka topic internal/ingest/pos consumes, adapted from the teacher's
// cmd/kafka-producer/main.go (flag-based synthetic load generator, async
// producer with success/error counters, graceful shutdown on signal) from
// leaderboard score submissions to receipt events.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// event mirrors internal/ingest/pos.Event's wire shape.
type event struct {
	TenantID       string  `json:"tenant_id"`
	UserID         string  `json:"user_id"`
	Amount         float64 `json:"amount"`
	Store          string  `json:"store"`
	Category       string  `json:"category"`
	Timestamp      string  `json:"timestamp"`
	IdempotencyKey string  `json:"idempotency_key"`
}

var stores = []struct {
	name     string
	category string
}{
	{"Deerfields Fashion", "fashion"},
	{"Deerfields Electronics", "electronics"},
	{"Deerfields Dining", "dining"},
	{"Deerfields Grocery", "grocery"},
	{"Deerfields Cinema", "entertainment"},
}

func main() {
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "pos-receipts", "Kafka topic")
	tenantID := flag.String("tenant", "deerfields", "tenant id")
	totalUsers := flag.Int("users", 500, "number of distinct user ids to simulate")
	eventsPerSecond := flag.Int("rate", 20, "receipt events per second")
	duration := flag.Duration("duration", 0, "duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Printf("pos-simulator: brokers=%s topic=%s tenant=%s users=%d rate=%d/s\n",
		*brokers, *topic, *tenantID, *totalUsers, *eventsPerSecond)

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Flush.Frequency = 100 * time.Millisecond
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, saramaConfig)
	if err != nil {
		log.Fatalf("failed to create producer: %v", err)
	}
	defer producer.Close()

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("producer error: %v", err)
		}
	}()

	userIDs := make([]string, *totalUsers)
	for i := range userIDs {
		userIDs[i] = uuid.NewString()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	send := func(ev event) {
		data, err := json.Marshal(ev)
		if err != nil {
			log.Printf("failed to marshal event: %v", err)
			return
		}
		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(ev.UserID),
			Value: sarama.ByteEncoder(data),
		}
		select {
		case producer.Input() <- msg:
		case <-done:
		}
	}

	interval := time.Second / time.Duration(*eventsPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	shutdown := func() {
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\nsent=%d errors=%d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	for {
		select {
		case <-sigChan:
			fmt.Println("\nshutting down...")
			shutdown()
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\nduration reached, shutting down...")
				shutdown()
				return
			}

			store := stores[rand.Intn(len(stores))]
			ev := event{
				TenantID:       *tenantID,
				UserID:         userIDs[rand.Intn(len(userIDs))],
				Amount:         float64(rand.Intn(48000)+200) / 100,
				Store:          store.name,
				Category:       store.category,
				Timestamp:      time.Now().Format(time.RFC3339),
				IdempotencyKey: uuid.NewString(),
			}
			send(ev)

		case <-statsTicker.C:
			fmt.Printf("[%s] sent=%d errors=%d\n", time.Now().Format("15:04:05"),
				atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
		}
	}
}
