// Command rider-sim plays a rider device: it samples a simulated GPS feed at
// the configured interval and streams the samples to the tracking server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"delivery/internal/config"
	"delivery/internal/domain"
	"delivery/internal/handler"
	"delivery/internal/kafka"
	"delivery/internal/logging"
	"delivery/internal/middleware"
	"delivery/internal/tracking"
)

// sender delivers samples to the server over one transport.
type sender interface {
	Send(ctx context.Context, sample domain.LocationSample) error
	Stop(ctx context.Context) error
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	server := flag.String("server", "http://localhost:"+cfg.Server.Port, "tracking server base URL")
	riderID := flag.String("rider", "rider-1", "rider id to report as")
	orderID := flag.String("order", "", "order id to stamp on samples")
	transport := flag.String("transport", "ws", "ws or kafka")
	lat := flag.Float64("lat", 6.4541, "starting latitude")
	lng := flag.Float64("lng", 3.3947, "starting longitude")
	fixEvery := flag.Duration("fix-every", time.Second, "raw GPS fix period")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "noise seed")
	flag.Parse()

	logger := logging.New(cfg.Log.Level).With("rider_id", *riderID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, simOptions{
		server:    *server,
		riderID:   *riderID,
		orderID:   *orderID,
		transport: *transport,
		gps:       newSimulatedGPS(*lat, *lng, *fixEvery, *seed),
	}, logger); err != nil {
		logger.Error("rider-sim failed", "error", err)
		os.Exit(1)
	}
}

type simOptions struct {
	server    string
	riderID   string
	orderID   string
	transport string
	gps       *simulatedGPS
}

func run(ctx context.Context, cfg *config.Config, opts simOptions, logger *slog.Logger) error {
	var (
		out sender
		err error
	)
	switch opts.transport {
	case "ws":
		out, err = dialStream(ctx, opts.server, opts.riderID, logger)
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			return errors.New("kafka transport needs KAFKA_BROKERS")
		}
		out = &kafkaSender{
			producer: kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic),
			server:   opts.server,
			riderID:  opts.riderID,
		}
	default:
		return fmt.Errorf("unknown transport %q", opts.transport)
	}
	if err != nil {
		return err
	}
	defer out.Close()

	sampler := tracking.NewSampler(
		tracking.WithInterval(cfg.Tracking.SamplerInterval),
		tracking.WithBattery(opts.gps),
	)

	// Initial placement before the first rate-limited sample.
	first, err := sampler.CurrentPosition(ctx, opts.gps, opts.riderID)
	if err != nil {
		return err
	}
	first.OrderID = opts.orderID
	if err := out.Send(ctx, first); err != nil {
		return fmt.Errorf("send initial position: %w", err)
	}

	if err := sampler.Start(opts.riderID, opts.orderID); err != nil {
		return err
	}
	logger.Info("tracking started", "interval", sampler.Interval(), "transport", opts.transport)

	var sendErr error
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	err = sampler.Run(runCtx, opts.gps, func(s domain.LocationSample) {
		if err := out.Send(runCtx, s); err != nil {
			sendErr = err
			cancel()
			return
		}
		logger.Debug("sample sent", "lat", s.Latitude, "lng", s.Longitude, "ts", s.TimestampMillis)
	})
	sampler.Stop()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := out.Stop(stopCtx); err != nil {
		logger.Warn("failed to send stop signal", "error", err)
	} else {
		logger.Info("tracking stopped")
	}

	if sendErr != nil {
		return sendErr
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// wsSender streams frames over the rider ingestion websocket.
type wsSender struct {
	conn *websocket.Conn
	done chan struct{}
}

func actorHeader(riderID string) http.Header {
	h := http.Header{}
	h.Set(middleware.ActorIDHeader, riderID)
	h.Set(middleware.ActorRoleHeader, string(domain.RoleRider))
	return h
}

func dialStream(ctx context.Context, server, riderID string, logger *slog.Logger) (*wsSender, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/v1/riders/" + url.PathEscape(riderID) + "/location/stream"

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), actorHeader(riderID))
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", u, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}

	s := &wsSender{conn: conn, done: make(chan struct{})}
	// Reading keeps ping and close control frames flowing.
	go func() {
		defer close(s.done)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				logger.Debug("stream reader stopped", "error", err)
				return
			}
		}
	}()
	return s, nil
}

func (s *wsSender) Send(_ context.Context, sample domain.LocationSample) error {
	return s.conn.WriteJSON(handler.IngestMessage{Type: "location", Sample: &sample})
}

func (s *wsSender) Stop(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
	}
	return s.conn.WriteJSON(handler.IngestMessage{Type: "stop"})
}

func (s *wsSender) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	select {
	case <-s.done:
	case <-time.After(time.Second):
	}
	return s.conn.Close()
}

// kafkaSender publishes samples to the ingestion topic and signals the stop
// over HTTP, since the topic carries samples only.
type kafkaSender struct {
	producer *kafka.Producer
	server   string
	riderID  string
}

func (k *kafkaSender) Send(ctx context.Context, sample domain.LocationSample) error {
	return k.producer.Publish(ctx, sample)
}

func (k *kafkaSender) Stop(ctx context.Context) error {
	endpoint := strings.TrimRight(k.server, "/") + "/v1/riders/" + url.PathEscape(k.riderID) + "/tracking"
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header = actorHeader(k.riderID)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("stop tracking: %s", resp.Status)
	}
	return nil
}

func (k *kafkaSender) Close() error {
	return k.producer.Close()
}
