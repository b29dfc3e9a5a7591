package template

import (
	"os"
	"path/filepath"
	"testing"

	iface "PartInspect/interface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	tpl, err := NewBuilder("bracket-a").
		PartType("bracket").
		GlobalTolerance(5, 5).
		Feature(iface.TemplateFeature{ID: "f1", Name: "hole", ClassID: 0, Position: iface.Point{X: 100, Y: 100}, Required: true}).
		Feature(iface.TemplateFeature{ID: "f2", Name: "hole", ClassID: 0, Position: iface.Point{X: 200, Y: 100}, Required: true}).
		Build()
	require.NoError(t, err)
	require.NoError(t, store.Save(tpl))

	loaded, err := store.Load("bracket-a")
	require.NoError(t, err)
	assert.Equal(t, tpl.ID, loaded.ID)
	assert.Equal(t, "bracket", loaded.PartType)
	require.Len(t, loaded.Features, 2)
	assert.Equal(t, tpl.Features[0].Position, loaded.Features[0].Position)
	require.NotNil(t, loaded.Features[0].Relative)

	ids, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"bracket-a"}, ids)
}

func TestStoreLoadRejectsIDMismatch(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	content := `id: other
features:
  - id: f1
    position: {x: 1, y: 1}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mine.yaml"), []byte(content), 0o644))
	_, err = store.Load("mine")
	assert.Error(t, err)
}

func TestStoreLoadMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	_, err = store.Load("absent")
	assert.Error(t, err)
}
