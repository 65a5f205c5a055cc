package battle

import (
	"fmt"
	"math/rand"
)

// SimEngine is a small reference engine used by the solo sandbox and the
// tests. It is intentionally simple but fully deterministic: every
// order-breaking choice comes from a rand.Source seeded with the battle seed,
// so two peers running it against the same boards always produce the same
// log.
//
// Units clash front-to-front and trade damage simultaneously. Two template
// abilities exist to exercise the ability event variants:
//   - "enrage":  gains +1 attack whenever it survives taking damage
//   - "spawner": leaves a 1/1 "spawnling" in its slot when it dies
type SimEngine struct{}

const maxClashes = 200

type template struct {
	attack int
	health int
}

var templates = map[string]template{
	"grunt":     {attack: 2, health: 2},
	"bruiser":   {attack: 3, health: 4},
	"tank":      {attack: 1, health: 6},
	"enrage":    {attack: 1, health: 3},
	"spawner":   {attack: 2, health: 1},
	"spawnling": {attack: 1, health: 1},
}

func statsFor(u UnitSummary) (int, int) {
	t, ok := templates[u.TemplateID]
	if !ok {
		t = template{attack: 2, health: 2}
	}
	atk := t.attack + u.AttackDelta
	hp := t.health + u.HealthDelta
	if atk < 0 {
		atk = 0
	}
	if hp < 1 {
		hp = 1
	}
	return atk, hp
}

func materialize(b Board, nextID *int) BoardState {
	out := make(BoardState, 0, len(b))
	for _, u := range b {
		atk, hp := statsFor(u)
		out = append(out, Unit{
			InstanceID: *nextID,
			TemplateID: u.TemplateID,
			Attack:     atk,
			Health:     hp,
		})
		*nextID++
	}
	return out
}

func (SimEngine) Resolve(self, opponent Board, seed int64) (Output, error) {
	if len(self) == 0 && len(opponent) == 0 {
		return Output{}, fmt.Errorf("nothing to resolve: both boards empty")
	}

	rng := rand.New(rand.NewSource(seed))
	nextID := 1
	player := materialize(self, &nextID)
	enemy := materialize(opponent, &nextID)

	out := Output{
		InitialPlayer: player.Clone(),
		InitialEnemy:  enemy.Clone(),
	}

	for i := 0; i < maxClashes && len(player) > 0 && len(enemy) > 0; i++ {
		p, e := &player[0], &enemy[0]
		out.Events = append(out.Events, Event{
			Type: EventClash,
			Side: SidePlayer, UnitID: p.InstanceID,
			TargetSide: SideEnemy, TargetID: e.InstanceID,
		})

		pDmg, eDmg := e.Attack, p.Attack
		// The rng breaks the tie on which side's damage lands first in the
		// log. Board math is simultaneous either way.
		first, second := SidePlayer, SideEnemy
		if rng.Intn(2) == 1 {
			first, second = second, first
		}
		for _, side := range []Side{first, second} {
			if side == SidePlayer && pDmg > 0 {
				out.Events = append(out.Events, Event{
					Type: EventDamageTaken, Side: SidePlayer,
					UnitID: p.InstanceID, Amount: pDmg,
				})
			}
			if side == SideEnemy && eDmg > 0 {
				out.Events = append(out.Events, Event{
					Type: EventDamageTaken, Side: SideEnemy,
					UnitID: e.InstanceID, Amount: eDmg,
				})
			}
		}
		p.Health -= pDmg
		e.Health -= eDmg

		enrage(&out, SidePlayer, p, pDmg)
		enrage(&out, SideEnemy, e, eDmg)

		player = reap(&out, SidePlayer, player, &nextID)
		enemy = reap(&out, SideEnemy, enemy, &nextID)
	}

	switch {
	case len(player) > 0 && len(enemy) == 0:
		out.Winner = SidePlayer
	case len(enemy) > 0 && len(player) == 0:
		out.Winner = SideEnemy
	default:
		out.Winner = SideNone
	}
	out.Events = append(out.Events, Event{Type: EventBattleEnd, Winner: out.Winner})
	return out, nil
}

func enrage(out *Output, side Side, u *Unit, dmg int) {
	if dmg <= 0 || u.Health <= 0 || u.TemplateID != "enrage" {
		return
	}
	out.Events = append(out.Events, Event{
		Type: EventAbilityTrigger, Side: side,
		UnitID: u.InstanceID, AbilityName: "Enrage",
	})
	out.Events = append(out.Events, Event{
		Type: EventAbilityModifyStats, Side: side,
		UnitID: u.InstanceID, AttackDelta: 1,
	})
	u.Attack++
}

// reap removes dead units from the front of a board, emitting death and any
// on-death spawn events.
func reap(out *Output, side Side, b BoardState, nextID *int) BoardState {
	for len(b) > 0 && b[0].Health <= 0 {
		dead := b[0]
		out.Events = append(out.Events, Event{
			Type: EventUnitDeath, Side: side, UnitID: dead.InstanceID,
		})
		b = b[1:]
		if dead.TemplateID == "spawner" {
			spawn := Unit{
				InstanceID: *nextID,
				TemplateID: "spawnling",
				Attack:     templates["spawnling"].attack,
				Health:     templates["spawnling"].health,
			}
			*nextID++
			out.Events = append(out.Events, Event{
				Type: EventAbilityTrigger, Side: side,
				UnitID: dead.InstanceID, AbilityName: "Final Brood",
			})
			out.Events = append(out.Events, Event{
				Type: EventUnitSpawn, Side: side,
				UnitID: spawn.InstanceID, Spawned: &spawn, Position: 0,
			})
			b = append(BoardState{spawn}, b...)
		}
	}
	return b
}
