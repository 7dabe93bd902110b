package gateway

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/JacquesBronk/FreeScrumPoker/go/internal/models"
	"github.com/JacquesBronk/FreeScrumPoker/go/internal/room"
	"github.com/JacquesBronk/FreeScrumPoker/go/internal/session"
)

// Hub delivers encoded frames to individual connections.
type Hub interface {
	// Send queues a frame without blocking and reports whether it was queued.
	Send(connectionID string, frame []byte) bool
}

// FrameHandler receives what connections read and when they close.
type FrameHandler interface {
	Submit(connectionID string, frame []byte) error
	Disconnected(connectionID string)
}

type DispatcherConfig struct {
	SweepInterval time.Duration
	MaxIdle       time.Duration
	InboxSize     int
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		SweepInterval: time.Hour,
		MaxIdle:       24 * time.Hour,
		InboxSize:     1024,
	}
}

// inboundFrame is a client frame or, when closed is set, the close notice of
// its connection. Both share the inbox so a connection's events are handled
// in the order they happened.
type inboundFrame struct {
	connectionID string
	frame        []byte
	closed       bool
}

var errHandlerPanic = errors.New("event handler panicked")

// Dispatcher is the only goroutine that mutates room state. It serially
// handles client events, disconnects, timer ticks, the idle-room sweep and
// requests from HTTP handlers.
type Dispatcher struct {
	app      *room.App
	store    *room.Store
	sessions *session.Registry
	timers   *room.Countdowns
	hub      Hub
	sink     EventSink
	metrics  *Metrics
	clock    clockwork.Clock
	config   DispatcherConfig

	inbox    chan inboundFrame
	requests chan func()
	done     chan struct{}
}

func NewDispatcher(
	app *room.App,
	store *room.Store,
	sessions *session.Registry,
	timers *room.Countdowns,
	hub Hub,
	sink EventSink,
	metrics *Metrics,
	clock clockwork.Clock,
	config DispatcherConfig,
) *Dispatcher {
	if sink == nil {
		sink = NoopSink{}
	}
	if config.InboxSize <= 0 {
		config.InboxSize = DefaultDispatcherConfig().InboxSize
	}
	return &Dispatcher{
		app:      app,
		store:    store,
		sessions: sessions,
		timers:   timers,
		hub:      hub,
		sink:     sink,
		metrics:  metrics,
		clock:    clock,
		config:   config,
		inbox:    make(chan inboundFrame, config.InboxSize),
		requests: make(chan func()),
		done:     make(chan struct{}),
	}
}

// Run processes work until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)

	sweep := d.clock.NewTicker(d.config.SweepInterval)
	defer sweep.Stop()

	log.Info().
		Dur("sweep_interval", d.config.SweepInterval).
		Dur("max_idle", d.config.MaxIdle).
		Msg("dispatcher started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("dispatcher shutting down")
			return
		case in := <-d.inbox:
			if in.closed {
				d.handleDisconnect(in.connectionID)
				continue
			}
			d.handleFrame(in)
		case tick := <-d.timers.Ticks():
			d.handleTick(tick)
		case fn := <-d.requests:
			fn()
		case <-sweep.Chan():
			d.sweep()
		}
	}
}

// Submit queues a frame read from a connection. It blocks while the inbox is
// full.
func (d *Dispatcher) Submit(connectionID string, frame []byte) error {
	select {
	case <-d.done:
		return ErrShuttingDown
	default:
	}

	select {
	case d.inbox <- inboundFrame{connectionID: connectionID, frame: frame}:
		return nil
	case <-d.done:
		return ErrShuttingDown
	}
}

// Disconnected queues the removal of a closed connection's participant.
func (d *Dispatcher) Disconnected(connectionID string) {
	select {
	case d.inbox <- inboundFrame{connectionID: connectionID, closed: true}:
	case <-d.done:
	}
}

// Do runs fn on the dispatcher goroutine and waits for it to return.
func (d *Dispatcher) Do(ctx context.Context, fn func()) error {
	var panicked any
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		defer func() {
			if r := recover(); r != nil {
				panicked = r
				log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("dispatcher request panicked")
			}
		}()
		fn()
	}

	select {
	case d.requests <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrShuttingDown
	}

	<-finished
	if panicked != nil {
		return fmt.Errorf("%w: %v", errHandlerPanic, panicked)
	}
	return nil
}

// Room returns a snapshot of a room, creating it from team defaults when it
// does not exist yet.
func (d *Dispatcher) Room(ctx context.Context, code, teamKey string) (*models.Room, error) {
	var (
		snapshot *models.Room
		err      error
	)
	doErr := d.Do(ctx, func() {
		var r *models.Room
		r, err = d.app.GetOrCreate(code, teamKey)
		if err == nil {
			snapshot = r.Snapshot()
		}
	})
	if doErr != nil {
		return nil, doErr
	}
	return snapshot, err
}

func (d *Dispatcher) handleFrame(in inboundFrame) {
	start := d.clock.Now()

	t, msg, err := Decode(in.frame)
	roomID := ""
	if err == nil {
		roomID = msg.room()
		err = d.safeHandle(in.connectionID, msg)
	}
	if err != nil {
		d.reject(in.connectionID, roomID, t, err)
		return
	}

	d.metrics.EventHandled(t, d.clock.Since(start))
}

func (d *Dispatcher) safeHandle(connectionID string, msg InboundMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("connection_id", connectionID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("event handler panicked")
			err = errHandlerPanic
		}
	}()
	return d.handle(connectionID, msg)
}

func (d *Dispatcher) handle(connectionID string, msg InboundMessage) error {
	switch m := msg.(type) {
	case *JoinRoom:
		return d.handleJoin(connectionID, m)

	case *CastVote:
		out, err := d.app.CastVote(m.RoomID, connectionID, m.Card, m.Confidence)
		if err != nil {
			return err
		}
		d.broadcast(m.RoomID, "", VoteCast{
			ParticipantID: out.ParticipantID,
			Card:          out.Vote.Card,
			Confidence:    out.Vote.Confidence,
			Timestamp:     out.Vote.Timestamp,
		})

	case *ToggleRevealCards:
		out, err := d.app.ToggleReveal(m.RoomID, connectionID)
		if err != nil {
			return err
		}
		d.broadcast(m.RoomID, "", CardsRevealed{Revealed: out.Revealed, By: out.By, Summary: out.Summary})

	case *ClearVotes:
		by, err := d.app.ClearVotes(m.RoomID, connectionID)
		if err != nil {
			return err
		}
		d.broadcast(m.RoomID, "", VotesCleared{By: by})

	case *UpdateStory:
		out, err := d.app.UpdateStory(m.RoomID, connectionID, m.Updates)
		if err != nil {
			return err
		}
		d.broadcast(m.RoomID, connectionID, StoryUpdated{Story: out.Story, By: out.By})

	case *ChangeEstimationType:
		t, by, err := d.app.ChangeEstimationType(m.RoomID, connectionID, m.EstimationType)
		if err != nil {
			return err
		}
		d.broadcast(m.RoomID, "", EstimationTypeChanged{EstimationType: t, By: by})

	case *ChangeCardSet:
		out, err := d.app.ChangeCardSet(m.RoomID, connectionID, m.CardSet, m.CustomCards)
		if err != nil {
			return err
		}
		d.broadcast(m.RoomID, "", CardSetChanged{CardSet: out.CardSet, CustomCards: out.CustomCards, By: out.By})

	case *ToggleTimer:
		out, err := d.app.ToggleTimer(m.RoomID, connectionID, m.Duration)
		if err != nil {
			return err
		}
		d.broadcast(m.RoomID, "", TimerUpdated{Timer: out.Timer, By: out.By})

	case *CompleteStory:
		out, err := d.app.CompleteStory(m.RoomID, connectionID, m.Estimate, m.Consensus)
		if err != nil {
			return err
		}
		d.broadcast(m.RoomID, "", StoryCompleted{Story: out.Story, Stats: out.Stats, By: out.By})
		if out.TimerStopped {
			d.broadcast(m.RoomID, "", TimerUpdated{Timer: out.Timer, By: out.By})
		}

	default:
		return fmt.Errorf("%T: %w", msg, ErrUnknownEvent)
	}
	return nil
}

func (d *Dispatcher) handleJoin(connectionID string, m *JoinRoom) error {
	out, err := d.app.Join(room.JoinRequest{
		RoomCode:     m.RoomID,
		UserName:     m.UserName,
		Role:         m.UserRole,
		TeamKey:      m.TeamKey,
		ConnectionID: connectionID,
	})
	if err != nil {
		return err
	}

	if out.Left != nil {
		d.broadcast(out.Left.RoomCode, connectionID, ParticipantLeft{
			ParticipantID:   out.Left.ParticipantID,
			ParticipantName: out.Left.ParticipantName,
		})
	}
	if out.ReplacedConnectionID != "" {
		d.send(out.ReplacedConnectionID, out.Room.ID, ErrorNotice{Message: "Joined from another connection"})
	}

	d.send(connectionID, out.Room.ID, RoomJoined{Room: out.Room})
	if !out.Rebound {
		d.broadcast(out.Room.ID, connectionID, ParticipantJoined{Participant: out.Participant})
	}
	return nil
}

func (d *Dispatcher) handleDisconnect(connectionID string) {
	out, ok := d.app.Disconnect(connectionID)
	if !ok {
		return
	}
	d.broadcast(out.RoomCode, connectionID, ParticipantLeft{
		ParticipantID:   out.ParticipantID,
		ParticipantName: out.ParticipantName,
	})
}

func (d *Dispatcher) handleTick(tick room.TimerTick) {
	out, ok := d.app.Tick(tick)
	if !ok {
		return
	}
	if out.Notify {
		d.broadcast(tick.RoomCode, "", TimerUpdated{Timer: out.Timer})
	}
	if out.Finished {
		d.broadcast(tick.RoomCode, "", TimerFinished{})
	}
}

func (d *Dispatcher) sweep() {
	evicted := d.store.Sweep(d.config.MaxIdle)
	d.metrics.RoomsEvicted(len(evicted))
	if len(evicted) > 0 {
		log.Info().Int("rooms_evicted", len(evicted)).Int("rooms", d.store.Len()).Msg("idle rooms swept")
	}
}

// broadcast sends a payload to every connection bound to a room except
// exclude, and hands a copy to the event sink.
func (d *Dispatcher) broadcast(roomID, exclude string, payload OutboundPayload) {
	code := room.NormalizeCode(roomID)
	frame, err := Encode(code, payload, d.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("room_id", code).Msg("failed to encode broadcast")
		return
	}

	queued := 0
	for _, connectionID := range d.sessions.Connections(code) {
		if connectionID == exclude {
			continue
		}
		if d.hub.Send(connectionID, frame) {
			queued++
		}
	}
	d.metrics.FramesQueued(payload.eventType(), queued)
	d.sink.Publish(code, payload.eventType(), frame)

	log.Debug().
		Str("room_id", code).
		Str("event_type", string(payload.eventType())).
		Int("connections", queued).
		Msg("event broadcasted")
}

func (d *Dispatcher) send(connectionID, roomID string, payload OutboundPayload) {
	frame, err := Encode(room.NormalizeCode(roomID), payload, d.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("connection_id", connectionID).Msg("failed to encode event")
		return
	}
	if d.hub.Send(connectionID, frame) {
		d.metrics.FramesQueued(payload.eventType(), 1)
	}
}

func (d *Dispatcher) reject(connectionID, roomID string, t EventType, err error) {
	kind, message := classify(t, err)
	d.metrics.EventRejected(kind)

	ev := log.Warn()
	if kind == "internal" {
		ev = log.Error()
	}
	ev.Err(err).
		Str("connection_id", connectionID).
		Str("room_id", roomID).
		Str("event_type", string(t)).
		Msg("event rejected")

	d.send(connectionID, roomID, ErrorNotice{Message: message})
}

// classify maps an error to a metrics label and the message shown to the
// client. Internal details are never sent.
func classify(t EventType, err error) (kind, message string) {
	switch {
	case errors.Is(err, room.ErrValidation):
		return "validation", "Room ID and username are required"
	case errors.Is(err, room.ErrInvalidSession):
		return "invalid_session", "Invalid session"
	case errors.Is(err, room.ErrRoomNotFound):
		return "room_not_found", "Room not found"
	case errors.Is(err, ErrMalformedMessage):
		return "malformed", "Malformed message"
	case errors.Is(err, ErrUnknownEvent):
		return "unknown_event", "Unknown event type"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited", "rate limit exceeded"
	case t == EventJoinRoom:
		return "internal", "Failed to join room"
	default:
		return "internal", "Something went wrong"
	}
}
