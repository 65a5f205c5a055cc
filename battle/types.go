package battle

// UnitSummary is the over-the-wire description of one unit slot: the card
// template it was bought from plus the permanent stat changes it has picked
// up in the shop. Board identity is positional, so no instance id here.
type UnitSummary struct {
	TemplateID  string `json:"template_id"`
	AttackDelta int    `json:"attack_delta"`
	HealthDelta int    `json:"health_delta"`
}

// Board is a front-to-back ordered lineup. It is everything a peer needs to
// resolve combat against it.
type Board []UnitSummary

// Side tells which board an event refers to, from the local player's view.
type Side byte

const (
	SideNone Side = iota
	SidePlayer
	SideEnemy
)

func (s Side) String() string {
	switch s {
	case SidePlayer:
		return "PLAYER"
	case SideEnemy:
		return "ENEMY"
	case SideNone:
		return "NONE"
	default:
		return "INVALID"
	}
}

// Unit is an engine-materialized unit. InstanceID is stable only within a
// single battle's event log.
type Unit struct {
	InstanceID int    `json:"instance_id"`
	TemplateID string `json:"template_id"`
	Attack     int    `json:"attack"`
	Health     int    `json:"health"`
}

// BoardState is a materialized lineup as the engine sees it mid-battle.
type BoardState []Unit

// Clone returns a deep copy so folds never alias the initial boards.
func (b BoardState) Clone() BoardState {
	out := make(BoardState, len(b))
	copy(out, b)
	return out
}

type EventType string

const (
	EventAbilityTrigger     EventType = "AbilityTrigger"
	EventClash              EventType = "Clash"
	EventDamageTaken        EventType = "DamageTaken"
	EventUnitSpawn          EventType = "UnitSpawn"
	EventUnitDeath          EventType = "UnitDeath"
	EventAbilityDamage      EventType = "AbilityDamage"
	EventAbilityModifyStats EventType = "AbilityModifyStats"
	EventBattleEnd          EventType = "BattleEnd"
)

// Event is one entry of a combat log. Only the fields relevant to its Type
// are set; everything an event needs to update board state and drive a
// visual cue, nothing more.
type Event struct {
	Type        EventType `json:"type"`
	Side        Side      `json:"side,omitempty"`
	UnitID      int       `json:"unit_id,omitempty"`
	TargetSide  Side      `json:"target_side,omitempty"`
	TargetID    int       `json:"target_id,omitempty"`
	Amount      int       `json:"amount,omitempty"`
	AttackDelta int       `json:"attack_delta,omitempty"`
	HealthDelta int       `json:"health_delta,omitempty"`
	AbilityName string    `json:"ability_name,omitempty"`
	Spawned     *Unit     `json:"spawned,omitempty"`
	Position    int       `json:"position,omitempty"`
	Winner      Side      `json:"winner,omitempty"`
}

// Output is everything one resolution produces. Events is immutable once
// returned; replaying it from the initial boards must reproduce the battle
// exactly.
type Output struct {
	Events        []Event    `json:"events"`
	InitialPlayer BoardState `json:"initial_player"`
	InitialEnemy  BoardState `json:"initial_enemy"`
	Winner        Side       `json:"winner"`
}
