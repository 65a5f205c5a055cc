package replay

import (
	"github.com/RedPaladin7/peerbattler/battle"
)

// ComputeBoards folds events[0:upto] over copies of the initial boards and
// returns the resulting pair. This is the only way non-forward navigation
// derives board state: re-running the same path from the start is what
// guarantees an arbitrary index always materializes the same boards, no
// matter how the user got there.
func ComputeBoards(initPlayer, initEnemy battle.BoardState, events []battle.Event, upto int) (battle.BoardState, battle.BoardState) {
	player := initPlayer.Clone()
	enemy := initEnemy.Clone()
	if upto > len(events) {
		upto = len(events)
	}
	for i := 0; i < upto; i++ {
		player, enemy = applyEvent(player, enemy, events[i])
	}
	return player, enemy
}

// applyEvent mutates board state for the events that carry board changes.
// Clash, AbilityTrigger and BattleEnd are visual-only.
func applyEvent(player, enemy battle.BoardState, ev battle.Event) (battle.BoardState, battle.BoardState) {
	pick := func(s battle.Side) battle.BoardState {
		if s == battle.SidePlayer {
			return player
		}
		return enemy
	}
	put := func(s battle.Side, b battle.BoardState) {
		if s == battle.SidePlayer {
			player = b
		} else {
			enemy = b
		}
	}

	switch ev.Type {
	case battle.EventDamageTaken, battle.EventAbilityDamage:
		b := pick(ev.Side)
		if u := find(b, ev.UnitID); u != nil {
			u.Health -= ev.Amount
		}
	case battle.EventAbilityModifyStats:
		b := pick(ev.Side)
		if u := find(b, ev.UnitID); u != nil {
			u.Attack += ev.AttackDelta
			u.Health += ev.HealthDelta
		}
	case battle.EventUnitDeath:
		b := pick(ev.Side)
		put(ev.Side, remove(b, ev.UnitID))
	case battle.EventUnitSpawn:
		if ev.Spawned == nil {
			break
		}
		b := pick(ev.Side)
		put(ev.Side, insert(b, *ev.Spawned, ev.Position))
	}
	return player, enemy
}

func find(b battle.BoardState, id int) *battle.Unit {
	for i := range b {
		if b[i].InstanceID == id {
			return &b[i]
		}
	}
	return nil
}

func remove(b battle.BoardState, id int) battle.BoardState {
	for i := range b {
		if b[i].InstanceID == id {
			return append(b[:i], b[i+1:]...)
		}
	}
	return b
}

func insert(b battle.BoardState, u battle.Unit, pos int) battle.BoardState {
	if pos < 0 {
		pos = 0
	}
	if pos > len(b) {
		pos = len(b)
	}
	b = append(b, battle.Unit{})
	copy(b[pos+1:], b[pos:])
	b[pos] = u
	return b
}
