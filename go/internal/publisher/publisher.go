package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cardroom/go/internal/events"
)

type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // How long to keep messages
	MaxMsgs         int64         // Max number of messages to keep
	Replicas        int
	DuplicateWindow time.Duration
	QueueSize       int
	PublishTimeout  time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "CARDROOM_EVENTS",
		SubjectPrefix:   "cardroom.rooms",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		MaxMsgs:         -1,
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
		QueueSize:       1024,
		PublishTimeout:  5 * time.Second,
	}
}

// streamPublisher is the part of jetstream.JetStream the publisher uses.
type streamPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher forwards room events to a JetStream stream. Notify never
// blocks; events are dropped when the queue is full.
type Publisher struct {
	nc     *nats.Conn
	js     streamPublisher
	config JetStreamConfig

	queue     chan events.Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func Connect(cfg JetStreamConfig) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("cardroom"),
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

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PublishTimeout)
	defer cancel()
	if err := ensureStream(ctx, js, cfg); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	p := newPublisher(js, cfg)
	p.nc = nc
	return p, nil
}

func newPublisher(js streamPublisher, cfg JetStreamConfig) *Publisher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	p := &Publisher{
		js:     js,
		config: cfg,
		queue:  make(chan events.Event, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

func ensureStream(ctx context.Context, js jetstream.JetStream, cfg JetStreamConfig) error {
	sc := jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Card room events",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		MaxMsgs:     cfg.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    cfg.Replicas,
		Duplicates:  cfg.DuplicateWindow,
	}

	stream, err := js.Stream(ctx, cfg.StreamName)
	if err != nil {
		if _, err = js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", cfg.StreamName).Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !sameLimits(info.Config, sc) {
		if _, err = js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().Str("stream", cfg.StreamName).Msg("updated JetStream stream")
	}
	return nil
}

func sameLimits(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgs == b.MaxMsgs &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}

// Notify queues evt for publishing.
func (p *Publisher) Notify(evt events.Event) {
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.queue <- evt:
	default:
		log.Warn().
			Str("event_type", evt.Type).
			Str("room_id", evt.RoomID).
			Msg("event queue full, dropping event")
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case evt := <-p.queue:
			p.publish(evt)
		case <-p.done:
			for {
				select {
				case evt := <-p.queue:
					p.publish(evt)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) publish(evt events.Event) {
	subject := Subject(p.config.SubjectPrefix, evt)
	data, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("event_type", evt.Type).Msg("failed to marshal event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishTimeout)
	defer cancel()
	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{evt.Type},
			"Room-ID":    []string{evt.RoomID},
			"Event-ID":   []string{evt.ID.String()},
		},
	},
		jetstream.WithMsgID(evt.ID.String()),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Str("event_id", evt.ID.String()).Msg("failed to publish event")
		return
	}

	log.Debug().
		Str("subject", subject).
		Str("event_id", evt.ID.String()).
		Uint64("sequence", ack.Sequence).
		Msg("published to JetStream")
}

// Subject is where evt is published: <prefix>.<room>.<event type>. Tokens
// NATS treats specially are replaced in the room id.
func Subject(prefix string, evt events.Event) string {
	room := subjectToken.Replace(evt.RoomID)
	if room == "" {
		room = "_"
	}
	return fmt.Sprintf("%s.%s.%s", prefix, room, evt.Type)
}

var subjectToken = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

// Ping fails while the NATS connection is down.
func (p *Publisher) Ping(context.Context) error {
	if p.nc == nil || !p.nc.IsConnected() {
		return errors.New("NATS disconnected")
	}
	return nil
}

// Close publishes what is queued and disconnects.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	p.wg.Wait()
	if p.nc != nil {
		return p.nc.Drain()
	}
	return nil
}
