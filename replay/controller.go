package replay

import (
	"fmt"
	"sync"
	"time"

	"github.com/RedPaladin7/peerbattler/battle"
)

type PlaybackState int32

const (
	PlaybackIdle PlaybackState = iota
	PlaybackPlaying
	PlaybackPaused
	PlaybackFinished
)

func (s PlaybackState) String() string {
	switch s {
	case PlaybackIdle:
		return "IDLE"
	case PlaybackPlaying:
		return "PLAYING"
	case PlaybackPaused:
		return "PAUSED"
	case PlaybackFinished:
		return "FINISHED"
	default:
		return "INVALID"
	}
}

type MarkerKind string

const (
	MarkerDamage     MarkerKind = "damage"
	MarkerStatChange MarkerKind = "stat-change"
	MarkerAbility    MarkerKind = "ability"
)

// Marker is a transient visual cue keyed by unit instance id: a floating
// damage number, a stat-change indicator, an ability-name toast. Markers are
// presentation-only; they never feed back into recomputed board state and
// are cleared by an explicit ExpireMarker call when their animation ends,
// not by index changes.
type Marker struct {
	UnitID int
	Kind   MarkerKind
	Text   string
}

// Per-event-type playback delays. A DamageTaken directly following another
// DamageTaken uses the chained delay so damage bursts read as one exchange;
// spawns and deaths get extra time for the slide/appear animation.
const (
	defaultDelay       = 600 * time.Millisecond
	damageDelay        = 450 * time.Millisecond
	chainedDamageDelay = 150 * time.Millisecond
	slideDelay         = 900 * time.Millisecond
)

// Controller materializes a combat log into animated board state with
// VCR-style navigation. It holds the immutable event log plus the two
// initial boards and derives everything else, so any index always reproduces
// the same boards regardless of how playback got there.
type Controller struct {
	mu         sync.Mutex
	events     []battle.Event
	initPlayer battle.BoardState
	initEnemy  battle.BoardState
	winner     battle.Side

	index   int
	player  battle.BoardState
	enemy   battle.BoardState
	markers map[int][]Marker

	state PlaybackState
	speed float64

	// delays are copied from the package constants so tests can shrink them
	delayDefault       time.Duration
	delayDamage        time.Duration
	delayChainedDamage time.Duration
	delaySlide         time.Duration

	stopch     chan struct{}
	onComplete func(battle.Side)
	completed  bool
}

func NewController(out battle.Output, onComplete func(battle.Side)) *Controller {
	return &Controller{
		events:             out.Events,
		initPlayer:         out.InitialPlayer.Clone(),
		initEnemy:          out.InitialEnemy.Clone(),
		winner:             out.Winner,
		player:             out.InitialPlayer.Clone(),
		enemy:              out.InitialEnemy.Clone(),
		markers:            make(map[int][]Marker),
		state:              PlaybackIdle,
		speed:              1.0,
		delayDefault:       defaultDelay,
		delayDamage:        damageDelay,
		delayChainedDamage: chainedDamageDelay,
		delaySlide:         slideDelay,
		onComplete:         onComplete,
	}
}

// Play starts or resumes auto-advance. No-op while already playing or once
// the log is finished.
func (c *Controller) Play() {
	c.mu.Lock()
	if c.state == PlaybackPlaying || c.state == PlaybackFinished {
		c.mu.Unlock()
		return
	}
	c.cancelAutoLocked()
	c.state = PlaybackPlaying
	stopch := make(chan struct{})
	c.stopch = stopch
	c.mu.Unlock()
	go c.run(stopch)
}

func (c *Controller) run(stopch chan struct{}) {
	for {
		c.mu.Lock()
		if c.state != PlaybackPlaying || c.stopch != stopch {
			c.mu.Unlock()
			return
		}
		if c.index >= len(c.events) {
			c.finishLocked()
			c.mu.Unlock()
			return
		}
		// Apply and advance under one lock so a pause can never leave the
		// boards ahead of the index.
		ev := c.events[c.index]
		applied := c.index
		c.player, c.enemy = applyEvent(c.player, c.enemy, ev)
		c.addMarkerLocked(ev)
		c.index++
		delay := time.Duration(float64(c.delayFor(applied)) / c.speed)
		c.mu.Unlock()

		select {
		case <-time.After(delay):
		case <-stopch:
			return
		}
	}
}

// Pause halts auto-advance. Board state stays at the last applied event.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != PlaybackPlaying {
		return
	}
	c.cancelAutoLocked()
	c.state = PlaybackPaused
}

// StepForward advances one event, pausing auto-play. Board state is
// recomputed by folding from the initial boards, same as StepBackward.
func (c *Controller) StepForward() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelAutoLocked()
	if c.index < len(c.events) {
		c.index++
	}
	c.recomputeLocked()
}

// StepBackward rewinds one event. Never undoes: the boards are rebuilt by
// replaying events[0:index] from the two initial boards, which is what makes
// the result identical to having played forward to that index originally.
func (c *Controller) StepBackward() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelAutoLocked()
	if c.index > 0 {
		c.index--
	}
	c.recomputeLocked()
}

// SkipToEnd jumps straight to the final board state and signals completion.
func (c *Controller) SkipToEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelAutoLocked()
	c.index = len(c.events)
	c.recomputeLocked()
}

// SetSpeed sets the playback speed multiplier; every subsequent delay is
// divided by it. The delay already scheduled is unaffected.
func (c *Controller) SetSpeed(multiplier float64) error {
	if multiplier <= 0 {
		return fmt.Errorf("speed multiplier must be positive, got %v", multiplier)
	}
	c.mu.Lock()
	c.speed = multiplier
	c.mu.Unlock()
	return nil
}

// Stop cancels the auto-play goroutine. Called on teardown so no callback
// fires against a controller whose battle is gone.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelAutoLocked()
	if c.state == PlaybackPlaying {
		c.state = PlaybackPaused
	}
}

// ExpireMarker clears the pending visual cues for one unit. Invoked by the
// presentation layer when the marker's own animation completes.
func (c *Controller) ExpireMarker(unitID int) {
	c.mu.Lock()
	delete(c.markers, unitID)
	c.mu.Unlock()
}

func (c *Controller) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

func (c *Controller) State() PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Boards() (battle.BoardState, battle.BoardState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player.Clone(), c.enemy.Clone()
}

func (c *Controller) Markers() map[int][]Marker {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int][]Marker, len(c.markers))
	for id, ms := range c.markers {
		out[id] = append([]Marker(nil), ms...)
	}
	return out
}

func (c *Controller) Len() int { return len(c.events) }

// recomputeLocked rebuilds the derived boards for the current index and
// settles the playback state. Finished is only reachable at the end of the
// log; rewinding out of it drops back to Paused.
func (c *Controller) recomputeLocked() {
	c.player, c.enemy = ComputeBoards(c.initPlayer, c.initEnemy, c.events, c.index)
	if c.index >= len(c.events) {
		c.finishLocked()
	} else if c.state != PlaybackIdle {
		c.state = PlaybackPaused
	}
}

func (c *Controller) finishLocked() {
	c.state = PlaybackFinished
	if c.completed {
		return
	}
	c.completed = true
	if c.onComplete != nil {
		go c.onComplete(c.winner)
	}
}

func (c *Controller) cancelAutoLocked() {
	if c.stopch != nil {
		close(c.stopch)
		c.stopch = nil
	}
}

func (c *Controller) delayFor(i int) time.Duration {
	switch c.events[i].Type {
	case battle.EventDamageTaken:
		if i > 0 && c.events[i-1].Type == battle.EventDamageTaken {
			return c.delayChainedDamage
		}
		return c.delayDamage
	case battle.EventUnitSpawn, battle.EventUnitDeath:
		return c.delaySlide
	default:
		return c.delayDefault
	}
}

func (c *Controller) addMarkerLocked(ev battle.Event) {
	switch ev.Type {
	case battle.EventDamageTaken, battle.EventAbilityDamage:
		c.markers[ev.UnitID] = append(c.markers[ev.UnitID], Marker{
			UnitID: ev.UnitID, Kind: MarkerDamage, Text: fmt.Sprintf("-%d", ev.Amount),
		})
	case battle.EventAbilityModifyStats:
		c.markers[ev.UnitID] = append(c.markers[ev.UnitID], Marker{
			UnitID: ev.UnitID, Kind: MarkerStatChange,
			Text: fmt.Sprintf("%+d/%+d", ev.AttackDelta, ev.HealthDelta),
		})
	case battle.EventAbilityTrigger:
		c.markers[ev.UnitID] = append(c.markers[ev.UnitID], Marker{
			UnitID: ev.UnitID, Kind: MarkerAbility, Text: ev.AbilityName,
		})
	}
}
