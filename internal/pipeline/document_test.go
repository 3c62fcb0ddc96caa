package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"vision-inspector/internal/apperrors"
)

// threeToolJob: 0→1→2 и 0→2, основной источник 2 — инструмент 1.
func threeToolJob(t *testing.T, reg *Registry) *Job {
	t.Helper()
	job := NewJob("round-trip")
	job.SetDescription("three connected tools")

	src, err := reg.Create(KindGeneric, nil)
	require.NoError(t, err)
	src.SetDisplayName("source")
	job.AddTool(src)

	mid, err := reg.Create(kindRecord, map[string]any{"threshold": 0.7, "labels": []any{"person"}})
	require.NoError(t, err)
	mid.SetDisplayName("middle")
	_, err = job.AddToolWithSource(mid, src.ID())
	require.NoError(t, err)

	last, err := reg.Create(kindRecord, map[string]any{"region": []any{1, 2, 3, 4}})
	require.NoError(t, err)
	last.SetDisplayName("last")
	job.AddTool(last)
	require.NoError(t, job.Connect(src.ID(), last.ID()))
	require.NoError(t, job.SetPrimarySource(mid.ID(), last.ID()))
	return job
}

func TestDocument_RoundTripJSONAndYAML(t *testing.T) {
	reg := testRegistry(nil)
	job := threeToolJob(t, reg)
	want := job.ToDocument()

	require.Equal(t, []ConnectionDocument{
		{SourceID: 0, TargetID: 1, IsPrimary: true},
		{SourceID: 0, TargetID: 2, IsPrimary: false},
		{SourceID: 1, TargetID: 2, IsPrimary: true},
	}, want.Connections)

	for _, name := range []string{"job.json", "job.yaml"} {
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, SaveDocumentFile(path, want))

		doc, err := LoadDocumentFile(path)
		require.NoError(t, err)
		loaded, err := FromDocument(doc, reg)
		require.NoError(t, err)

		if diff := cmp.Diff(want, loaded.ToDocument()); diff != "" {
			t.Fatalf("%s round trip mismatch (-want +got):\n%s", name, diff)
		}
		src, ok := loaded.PrimarySource(2)
		require.True(t, ok)
		require.Equal(t, 1, src)
		require.Equal(t, []int{0, 1}, loaded.Inputs(2))
	}
}

func TestDocument_UnknownKindAborts(t *testing.T) {
	doc := Document{Name: "bad", Tools: []ToolDocument{{Kind: "OCRTool", ToolID: 0}}}
	_, err := FromDocument(doc, testRegistry(nil))
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.CodeUnknownKind))
}

func TestDocument_EmptyKindFallsBackToGeneric(t *testing.T) {
	doc := Document{Name: "generic", Tools: []ToolDocument{{ToolID: 3, DisplayName: "pass"}}}
	job, err := FromDocument(doc, testRegistry(nil))
	require.NoError(t, err)
	tool, ok := job.Tool(3)
	require.True(t, ok)
	require.Equal(t, KindGeneric, tool.Kind())
	require.Equal(t, "pass", tool.DisplayName())
}

func TestDocument_InvalidConfigKeepsTool(t *testing.T) {
	doc := Document{Tools: []ToolDocument{{
		Kind:   kindRecord,
		ToolID: 0,
		Config: map[string]any{"threshold": 9.0, "extra": true},
	}}}
	job, err := FromDocument(doc, testRegistry(nil))
	require.NoError(t, err)
	tool, _ := job.Tool(0)
	require.Equal(t, 0.5, tool.Config().Float("threshold"))
}

func TestDocument_BadConnectionAborts(t *testing.T) {
	doc := Document{
		Tools:       []ToolDocument{{Kind: KindGeneric, ToolID: 0}},
		Connections: []ConnectionDocument{{SourceID: 0, TargetID: 5}},
	}
	_, err := FromDocument(doc, testRegistry(nil))
	require.True(t, apperrors.Is(err, apperrors.CodeConfiguration))
}

func TestEngine_LoadJobFileRejectsCycle(t *testing.T) {
	doc := Document{
		Name: "cyclic",
		Tools: []ToolDocument{
			{Kind: KindGeneric, ToolID: 0},
			{Kind: KindGeneric, ToolID: 1},
		},
		Connections: []ConnectionDocument{
			{SourceID: 0, TargetID: 1},
			{SourceID: 1, TargetID: 0},
		},
	}
	path := filepath.Join(t.TempDir(), "cyclic.json")
	require.NoError(t, SaveDocumentFile(path, doc))

	e := NewEngine(testRegistry(nil))
	_, err := e.LoadJobFile(path)
	require.True(t, apperrors.Is(err, apperrors.CodeCycleDetected))
	require.Equal(t, "default", e.Job().Name())
}
