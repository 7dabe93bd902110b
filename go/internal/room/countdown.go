package room

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/JacquesBronk/FreeScrumPoker/go/internal/models"
)

// Timer synchronization
//
// The server owns the countdown: a room's timer ticks once per second here and
// the remaining time is broadcast every 30 seconds and on every start, stop
// and finish. Clients seed a local per-second countdown from the last
// remaining value they received and correct it on the next broadcast.

// TimerTick is emitted once per second for every running countdown.
type TimerTick struct {
	RoomCode   string
	Generation uint64
}

// Countdowns schedules the per-second ticks of room timers and forwards them
// to a single channel consumed by the dispatcher.
type Countdowns struct {
	clock    clockwork.Clock
	interval time.Duration
	ticks    chan TimerTick
	gen      atomic.Uint64
	wg       sync.WaitGroup
}

// NewCountdowns creates a scheduler ticking at the given interval.
func NewCountdowns(clock clockwork.Clock, interval time.Duration) *Countdowns {
	return &Countdowns{
		clock:    clock,
		interval: interval,
		ticks:    make(chan TimerTick, 64),
	}
}

// Ticks is the channel every countdown delivers its ticks on.
func (c *Countdowns) Ticks() <-chan TimerTick {
	return c.ticks
}

// Wait blocks until every scheduled countdown goroutine has exited.
func (c *Countdowns) Wait() {
	c.wg.Wait()
}

// Countdown is the cancellable tick task of one running room timer.
type Countdown struct {
	RoomCode   string
	Generation uint64

	cancel context.CancelFunc
	once   sync.Once
}

// Cancel stops the countdown. Calling it more than once is a no-op.
func (cd *Countdown) Cancel() {
	cd.once.Do(func() {
		cd.cancel()
		log.Debug().
			Str("room_id", cd.RoomCode).
			Uint64("generation", cd.Generation).
			Msg("cancelled countdown")
	})
}

// Schedule starts ticking for a room and returns the handle that cancels it.
func (c *Countdowns) Schedule(roomCode string) *Countdown {
	ctx, cancel := context.WithCancel(context.Background())
	cd := &Countdown{
		RoomCode:   roomCode,
		Generation: c.gen.Add(1),
		cancel:     cancel,
	}

	ticker := c.clock.NewTicker(c.interval)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				select {
				case c.ticks <- TimerTick{RoomCode: cd.RoomCode, Generation: cd.Generation}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	log.Debug().
		Str("room_id", roomCode).
		Uint64("generation", cd.Generation).
		Dur("interval", c.interval).
		Msg("scheduled countdown")

	return cd
}

// cancelCountdown cancels and detaches the countdown of a room, if any.
func cancelCountdown(r *models.Room) {
	if r.Countdown == nil {
		return
	}
	r.Countdown.Cancel()
	r.Countdown = nil
}

// countdownGeneration reports the generation of a room's running countdown.
func countdownGeneration(r *models.Room) (uint64, bool) {
	cd, ok := r.Countdown.(*Countdown)
	if !ok || cd == nil {
		return 0, false
	}
	return cd.Generation, true
}
