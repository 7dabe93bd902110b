package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// EventSink receives a copy of every room-wide broadcast. Publish must not
// block the caller.
type EventSink interface {
	Publish(roomCode string, t EventType, frame []byte)
}

// NoopSink discards events.
type NoopSink struct{}

func (NoopSink) Publish(string, EventType, []byte) {}

type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration
	MaxMsgs         int64
	Replicas        int
	DuplicateWindow time.Duration
	BufferSize      int
	PublishTimeout  time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "SCRUM_POKER_ROOMS",
		SubjectPrefix:   "poker.rooms",
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		MaxMsgs:         -1,
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
		BufferSize:      1024,
		PublishTimeout:  5 * time.Second,
	}
}

type pendingEvent struct {
	roomCode string
	typ      EventType
	frame    []byte
}

// JetStreamSink publishes room events to a JetStream stream under
// <prefix>.<room code>.<event type>. Events are queued and published by Run;
// when the queue is full they are dropped.
type JetStreamSink struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	config  JetStreamConfig
	queue   chan pendingEvent
	metrics *Metrics
}

func NewJetStreamSink(ctx context.Context, cfg JetStreamConfig, metrics *Metrics) (*JetStreamSink, error) {
	opts := []nats.Option{
		nats.Name("scrumpoker-gateway"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	s := &JetStreamSink{
		nc:      nc,
		js:      js,
		config:  cfg,
		queue:   make(chan pendingEvent, cfg.BufferSize),
		metrics: metrics,
	}

	if err := s.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return s, nil
}

func (s *JetStreamSink) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        s.config.StreamName,
		Description: "Planning poker room events",
		Subjects:    []string{s.config.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      s.config.MaxAge,
		MaxMsgs:     s.config.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    s.config.Replicas,
		Duplicates:  s.config.DuplicateWindow,
	}

	stream, err := s.js.Stream(ctx, s.config.StreamName)
	if err != nil {
		if _, err = s.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", s.config.StreamName).Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if info.Config.MaxAge != sc.MaxAge || info.Config.MaxMsgs != sc.MaxMsgs ||
		info.Config.Replicas != sc.Replicas || info.Config.Duplicates != sc.Duplicates {
		if _, err = s.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().Str("stream", s.config.StreamName).Msg("updated JetStream stream")
	}
	return nil
}

// Publish queues an event without blocking.
func (s *JetStreamSink) Publish(roomCode string, t EventType, frame []byte) {
	select {
	case s.queue <- pendingEvent{roomCode: roomCode, typ: t, frame: frame}:
	default:
		s.metrics.Published(false)
		log.Warn().
			Str("room_id", roomCode).
			Str("event_type", string(t)).
			Msg("event bus queue full, dropping event")
	}
}

// Run publishes queued events until ctx is cancelled.
func (s *JetStreamSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.queue:
			s.publish(ctx, ev)
		}
	}
}

func (s *JetStreamSink) publish(ctx context.Context, ev pendingEvent) {
	subject := fmt.Sprintf("%s.%s.%s", s.config.SubjectPrefix, ev.roomCode, ev.typ)

	pubCtx, cancel := context.WithTimeout(ctx, s.config.PublishTimeout)
	defer cancel()

	ack, err := s.js.PublishMsg(pubCtx, &nats.Msg{
		Subject: subject,
		Data:    ev.frame,
		Header: nats.Header{
			"Event-Type": []string{string(ev.typ)},
			"Room-ID":    []string{ev.roomCode},
		},
	}, jetstream.WithExpectStream(s.config.StreamName))
	if err != nil {
		s.metrics.Published(false)
		log.Error().Err(err).Str("subject", subject).Msg("failed to publish room event")
		return
	}

	s.metrics.Published(true)
	log.Debug().
		Str("subject", subject).
		Uint64("sequence", ack.Sequence).
		Msg("published room event")
}

func (s *JetStreamSink) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}
