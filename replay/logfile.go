package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/RedPaladin7/peerbattler/battle"
)

// Record is a saved combat log. The controller does not care where an Output
// came from, so a record written after a peer session replays exactly like
// one produced by a solo sandbox run.
type Record struct {
	ID      string        `json:"id"`
	SavedAt time.Time     `json:"saved_at"`
	Round   int           `json:"round"`
	Seed    int64         `json:"seed"`
	Output  battle.Output `json:"output"`
}

func NewRecord(round int, seed int64, out battle.Output) Record {
	return Record{
		ID:      uuid.NewString(),
		SavedAt: time.Now().UTC(),
		Round:   round,
		Seed:    seed,
		Output:  out,
	}
}

func SaveRecord(filename string, rec Record) error {
	data, err := json.MarshalIndent(rec, "", " ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

func LoadRecord(filename string) (Record, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("malformed battle record %s: %w", filename, err)
	}
	return rec, nil
}
