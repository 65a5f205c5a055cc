package replay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadRecord(t *testing.T) {
	out := sevenEventLog()
	rec := NewRecord(3, 400, out)
	require.NotEmpty(t, rec.ID)

	path := filepath.Join(t.TempDir(), "battle.json")
	require.NoError(t, SaveRecord(path, rec))

	loaded, err := LoadRecord(path)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, loaded.ID)
	assert.Equal(t, rec.Round, loaded.Round)
	assert.Equal(t, rec.Seed, loaded.Seed)
	assert.Equal(t, rec.Output.Events, loaded.Output.Events)

	// A loaded record replays exactly like the original output.
	a, b := ComputeBoards(loaded.Output.InitialPlayer, loaded.Output.InitialEnemy, loaded.Output.Events, len(loaded.Output.Events))
	c, d := ComputeBoards(out.InitialPlayer, out.InitialEnemy, out.Events, len(out.Events))
	assert.Equal(t, c, a)
	assert.Equal(t, d, b)
}

func TestLoadRecordMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := LoadRecord(path)
	require.Error(t, err)
}

func TestLoadRecordMissingFile(t *testing.T) {
	_, err := LoadRecord(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
