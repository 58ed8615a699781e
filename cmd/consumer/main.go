// The consumer tails the reservation topic and maintains booking
// counters in Redis: bookings per vehicle and revenue per payment
// method. Counters feed the fleet dashboard; the records themselves
// live in Postgres.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-booking/internal/events"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total reservation events consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	msgsDuplicate = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_duplicate_total",
		Help: "Total reservation events skipped as already applied",
	})
	redisUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_updates_total",
		Help: "Total successful redis updates",
	})
	redisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_errors_total",
		Help: "Total redis errors",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, msgsDuplicate, redisUpdates, redisErrors)
}

func main() {
	// allow some flags for local runs
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	brokersEnv := os.Getenv("KAFKA_BROKERS")
	brokers := []string{}
	if brokersEnv != "" {
		for _, b := range strings.Split(brokersEnv, ",") {
			if s := strings.TrimSpace(b); s != "" {
				brokers = append(brokers, s)
			}
		}
	} else {
		brokers = []string{"localhost:9092"}
	}

	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "reservation-created"
	}
	group := os.Getenv("KAFKA_GROUP")
	if group == "" {
		group = "booking-analytics-consumer"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rc := redis.NewClient(&redis.Options{Addr: redisAddr, Password: os.Getenv("REDIS_PASSWORD")})
	counters := &redisCounters{c: rc}

	// start metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		log.Printf("metrics/health listening on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	log.Printf("consumer listening topic=%s brokers=%v group=%s", topic, brokers, group)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("shutting down consumer")
				return
			}
			log.Printf("kafka read error: %v; backing off %s", err, backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		// reset backoff on success
		backoff = time.Second

		msgsConsumed.Inc()

		var ev events.ReservationEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil || ev.ReservationID == "" {
			msgsInvalid.Inc()
			log.Printf("invalid message: %v", err)
			continue
		}

		applied, err := applyWithRetry(ctx, counters, ev, 3, 200*time.Millisecond)
		if err != nil {
			redisErrors.Inc()
			log.Printf("redis update failed for reservation=%s: %v", ev.ReservationID, err)
			continue
		}
		if !applied {
			msgsDuplicate.Inc()
			continue
		}
		redisUpdates.Inc()
	}
}

// Counters defines the small subset of redis operations we need for
// tests and production.
type Counters interface {
	MarkSeen(ctx context.Context, reservationID string) (bool, error)
	IncrVehicle(ctx context.Context, vehicleID string) error
	AddRevenue(ctx context.Context, method string, amount float64) error
}

type redisCounters struct{ c *redis.Client }

// seenTTL bounds the dedupe set; redelivery windows are far shorter.
const seenTTL = 7 * 24 * time.Hour

func (r *redisCounters) MarkSeen(ctx context.Context, reservationID string) (bool, error) {
	return r.c.SetNX(ctx, "booking:seen:"+reservationID, 1, seenTTL).Result()
}

func (r *redisCounters) IncrVehicle(ctx context.Context, vehicleID string) error {
	return r.c.Incr(ctx, "booking:count:vehicle:"+vehicleID).Err()
}

func (r *redisCounters) AddRevenue(ctx context.Context, method string, amount float64) error {
	return r.c.IncrByFloat(ctx, "booking:revenue:"+method, amount).Err()
}

// applyWithRetry applies one event with retry/backoff. The dedupe mark
// makes redelivered messages no-ops; the first return reports whether
// the counters were actually moved.
func applyWithRetry(ctx context.Context, c Counters, ev events.ReservationEvent, attempts int, delay time.Duration) (bool, error) {
	var fresh bool
	for i := 0; i < attempts; i++ {
		ok, err := c.MarkSeen(ctx, ev.ReservationID)
		if err != nil {
			if i == attempts-1 {
				return false, err
			}
			time.Sleep(delay)
			delay *= 2
			continue
		}
		fresh = ok
		break
	}
	if !fresh {
		return false, nil
	}
	for i := 0; i < attempts; i++ {
		if err := c.IncrVehicle(ctx, ev.VehicleID); err != nil {
			if i == attempts-1 {
				return false, err
			}
			time.Sleep(delay)
			delay *= 2
			continue
		}
		if err := c.AddRevenue(ctx, ev.PaymentMethod, ev.Total); err != nil {
			if i == attempts-1 {
				return false, err
			}
			time.Sleep(delay)
			delay *= 2
			continue
		}
		return true, nil
	}
	return true, nil
}
