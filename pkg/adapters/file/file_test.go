package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stagecraft/pkg/adapters/file"
	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/ports"
)

func TestStore_Contract(t *testing.T) {
	ports.RunTaskStoreContract(t, file.NewStore(t.TempDir()))
}

func TestStore_ListIgnoresTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := file.NewStore(dir)
	require.NoError(t, store.Save(context.Background(), domain.NewTask("a", []string{"x"})))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tmp-b.json-123"), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644))

	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)

	ids, err = file.NewStore(filepath.Join(dir, "missing")).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSource(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
	write("shop.yaml", "stages: {}\n")
	write("auth.toml", "[stages]\n")
	write("billing.json", `{"stages": {}}`)
	write("README.md", "# agents")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0755))

	src := file.NewSource(dir)
	ctx := context.Background()

	names, err := src.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"auth", "billing", "shop"}, names)

	doc, err := src.Read(ctx, "auth")
	require.NoError(t, err)
	assert.Equal(t, "toml", doc.Format)
	assert.Equal(t, filepath.Join(dir, "auth.toml"), doc.Origin)
	assert.Equal(t, "[stages]\n", string(doc.Data))

	_, err = src.Read(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)

	_, err = src.Read(ctx, "../shop")
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)
}

func results(t *testing.T) *domain.AgentResults {
	t.Helper()
	act := &domain.Action{Name: "pass", Signature: "pass"}
	elements := domain.NewElementResults()
	require.NoError(t, elements.Set("item", domain.ActionResults{domain.Succeeded(act, "ok")}))
	stages := domain.NewStageResults()
	require.NoError(t, stages.Set("stage", elements))
	agent := domain.NewAgentResults()
	require.NoError(t, agent.Set("shop", stages))
	agent.Close()
	return agent
}

func TestArchive_SaveAndLoad(t *testing.T) {
	root := t.TempDir()
	archive := file.NewArchive(root)
	when := time.Date(2024, 3, 9, 14, 0, 0, 0, time.UTC)

	dir, err := archive.Save(context.Background(), ports.ArchiveRecord{
		RunID:    "run-1",
		Agent:    "shop",
		Time:     when,
		Success:  true,
		Results:  results(t),
		Resolved: []byte("stages: {}\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "shop", "2024-03-09", "run-1"), dir)

	assert.True(t, file.Succeeded(dir))
	info, err := os.Stat(filepath.Join(dir, file.SuccessFile))
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	cfg, err := os.ReadFile(filepath.Join(dir, file.ConfigFile))
	require.NoError(t, err)
	assert.Equal(t, "stages: {}\n", string(cfg))

	loaded, err := file.LoadSnapshot(dir)
	require.NoError(t, err)
	assert.True(t, loaded.Closed())
	assert.True(t, loaded.IsSuccessful())
	stages, ok := loaded.Get("shop")
	require.True(t, ok)
	elements, ok := stages.Get("stage")
	require.True(t, ok)
	item, ok := elements.Get("item")
	require.True(t, ok)
	assert.Equal(t, "ok", item[0].Payload)

	runs, err := archive.Runs("shop")
	require.NoError(t, err)
	assert.Equal(t, []string{dir}, runs)
}

func TestArchive_FailedRunHasNoMarker(t *testing.T) {
	archive := file.NewArchive(t.TempDir())

	dir, err := archive.Save(context.Background(), ports.ArchiveRecord{
		RunID:   "run-2",
		Agent:   "shop",
		Time:    time.Now(),
		Results: results(t),
	})
	require.NoError(t, err)
	assert.False(t, file.Succeeded(dir))
	_, err = file.LoadSnapshot(dir)
	require.NoError(t, err)

	_, err = archive.Save(context.Background(), ports.ArchiveRecord{RunID: "x"})
	assert.Error(t, err)

	runs, err := archive.Runs("nobody")
	require.NoError(t, err)
	assert.Empty(t, runs)
}
