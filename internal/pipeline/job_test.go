package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"vision-inspector/internal/apperrors"
)

func TestJob_AddToolAssignsIDs(t *testing.T) {
	job := NewJob("j")
	a := job.AddTool(newRecordTool("a", nil))
	explicit := newRecordTool("b", nil)
	explicit.SetID(10)
	job.AddTool(explicit)
	c := job.AddTool(newRecordTool("c", nil))

	require.Equal(t, 0, a.ID())
	require.Equal(t, 10, explicit.ID())
	require.Equal(t, 11, c.ID())

	dup := newRecordTool("dup", nil)
	dup.SetID(10)
	job.AddTool(dup)
	require.Equal(t, 12, dup.ID())
}

func TestJob_AddToolWithUnknownSourceStillAdds(t *testing.T) {
	job := NewJob("j")
	tool, err := job.AddToolWithSource(newRecordTool("a", nil), 42)
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.CodeNotFound))
	require.Equal(t, 1, job.Len())
	_, ok := job.PrimarySource(tool.ID())
	require.False(t, ok)
}

func TestJob_ConnectRules(t *testing.T) {
	job := NewJob("j")
	a := job.AddTool(newRecordTool("a", nil))
	b := job.AddTool(newRecordTool("b", nil))

	require.Error(t, job.Connect(a.ID(), a.ID()))
	require.Error(t, job.Connect(a.ID(), 99))
	require.NoError(t, job.Connect(a.ID(), b.ID()))
	require.NoError(t, job.Connect(a.ID(), b.ID()))

	require.Equal(t, []int{b.ID()}, job.Outputs(a.ID()))
	require.Equal(t, []int{a.ID()}, job.Inputs(b.ID()))
	require.Equal(t, []int{a.ID()}, job.StartTools())
	require.Equal(t, []int{b.ID()}, job.EndTools())
}

func TestJob_DisconnectClearsPrimary(t *testing.T) {
	job := NewJob("j")
	a := job.AddTool(newRecordTool("a", nil))
	b, err := job.AddToolWithSource(newRecordTool("b", nil), a.ID())
	require.NoError(t, err)

	src, ok := job.PrimarySource(b.ID())
	require.True(t, ok)
	require.Equal(t, a.ID(), src)

	require.NoError(t, job.Disconnect(a.ID(), b.ID()))
	_, ok = job.PrimarySource(b.ID())
	require.False(t, ok)
	require.Empty(t, job.Inputs(b.ID()))
	require.Equal(t, []int{a.ID(), b.ID()}, job.StartTools())
}

func TestJob_RemoveToolErasesReferences(t *testing.T) {
	job := NewJob("j")
	a := job.AddTool(newRecordTool("a", nil))
	b, _ := job.AddToolWithSource(newRecordTool("b", nil), a.ID())
	c := job.AddTool(newRecordTool("c", nil))
	require.NoError(t, job.Connect(b.ID(), c.ID()))

	require.NoError(t, job.RemoveTool(1))
	require.Equal(t, 2, job.Len())
	require.Empty(t, job.Outputs(a.ID()))
	require.Empty(t, job.Inputs(c.ID()))
	require.Equal(t, []int{a.ID(), c.ID()}, job.StartTools())
	require.Error(t, job.RemoveTool(5))
}

func TestJob_MoveToolKeepsTopology(t *testing.T) {
	job := NewJob("j")
	a := job.AddTool(newRecordTool("a", nil))
	b := job.AddTool(newRecordTool("b", nil))
	c := job.AddTool(newRecordTool("c", nil))
	require.NoError(t, job.Connect(a.ID(), c.ID()))

	require.NoError(t, job.MoveTool(0, 2))
	tools := job.Tools()
	require.Equal(t, []int{b.ID(), c.ID(), a.ID()}, []int{tools[0].ID(), tools[1].ID(), tools[2].ID()})
	require.Equal(t, []int{c.ID()}, job.Outputs(a.ID()))
	require.Error(t, job.MoveTool(0, 3))
}

func TestJob_RunTopologicalOrder(t *testing.T) {
	rec := &recorder{}
	job := NewJob("j")
	// добавляем в обратном порядке: порядок списка не должен влиять на порядок выполнения
	d := job.AddTool(newRecordTool("d", rec))
	c := job.AddTool(newRecordTool("c", rec))
	b := job.AddTool(newRecordTool("b", rec))
	a := job.AddTool(newRecordTool("a", rec))
	require.NoError(t, job.Connect(a.ID(), b.ID()))
	require.NoError(t, job.Connect(a.ID(), c.ID()))
	require.NoError(t, job.Connect(b.ID(), d.ID()))
	require.NoError(t, job.Connect(c.ID(), d.ID()))

	_, res, err := job.Run(context.Background(), testFrame(), nil)
	require.NoError(t, err)
	require.Equal(t, string(JobCompleted), res[KeyStatus])
	require.Equal(t, JobCompleted, job.Status())

	order := rec.calls()
	require.Len(t, order, 4)
	pos := map[string]int{}
	for i, name := range order {
		pos[name] = i
	}
	require.Less(t, pos["a"], pos["b"])
	require.Less(t, pos["a"], pos["c"])
	require.Less(t, pos["b"], pos["d"])
	require.Less(t, pos["c"], pos["d"])
}

func TestJob_RunWithoutEdgesUsesListOrder(t *testing.T) {
	rec := &recorder{}
	job := NewJob("j")
	job.AddTool(newRecordTool("x", rec))
	job.AddTool(newRecordTool("y", rec))

	out, res, err := job.Run(context.Background(), testFrame(), Context{"seed": 1})
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y"}, rec.calls())
	require.Equal(t, 1, res["seed"])
	require.Equal(t, "y", res["last"])
	require.Equal(t, uint64(2), out.Seq)
}

func TestJob_RunPrimarySourceFeedsImageAndResult(t *testing.T) {
	rec := &recorder{}
	job := NewJob("j")
	src := job.AddTool(newRecordTool("src", rec))
	other := job.AddTool(newRecordTool("other", rec))
	sink := newRecordTool("sink", rec)
	job.AddTool(sink)
	require.NoError(t, job.Connect(other.ID(), sink.ID()))
	require.NoError(t, job.SetPrimarySource(src.ID(), sink.ID()))

	_, _, err := job.Run(context.Background(), testFrame(), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"src", "other", "sink"}, rec.calls())
	// other выполнен последним, но sink получает кадр и результат src
	require.Equal(t, uint64(1), sink.seenImg.Seq)
	require.Equal(t, "src", sink.seenCtx["last"])
}

func TestJob_RunFailureReturnsInputImage(t *testing.T) {
	job := NewJob("j")
	a := job.AddTool(newRecordTool("a", nil))
	bad := newRecordTool("bad", nil)
	bad.fail = true
	_, err := job.AddToolWithSource(bad, a.ID())
	require.NoError(t, err)

	in := testFrame()
	out, res, err := job.Run(context.Background(), in, nil)
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.CodePipeline))
	require.Same(t, in, out)
	require.Equal(t, "bad", res[KeyFailedTool])
	require.Equal(t, string(JobFailed), res[KeyStatus])
	require.Contains(t, res[KeyError], "tool exploded")
	require.Equal(t, JobFailed, job.Status())
}

func TestJob_RunRecoversPanic(t *testing.T) {
	job := NewJob("j")
	p := newRecordTool("p", nil)
	p.panics = true
	job.AddTool(p)

	_, res, err := job.Run(context.Background(), testFrame(), nil)
	require.Error(t, err)
	require.Contains(t, res[KeyError], "boom")
}

func TestJob_RunDetectsCycle(t *testing.T) {
	job := NewJob("j")
	a := job.AddTool(newRecordTool("a", nil))
	b := job.AddTool(newRecordTool("b", nil))
	c := job.AddTool(newRecordTool("c", nil))
	require.NoError(t, job.Connect(a.ID(), b.ID()))
	require.NoError(t, job.Connect(b.ID(), c.ID()))
	require.NoError(t, job.Connect(c.ID(), b.ID()))

	require.True(t, apperrors.Is(job.Validate(), apperrors.CodeCycleDetected))

	_, _, err := job.Run(context.Background(), testFrame(), nil)
	require.True(t, apperrors.Is(err, apperrors.CodeCycleDetected))
}

func TestJob_RunDetectsIsolatedCycle(t *testing.T) {
	job := NewJob("j")
	job.AddTool(newRecordTool("a", nil))
	b := job.AddTool(newRecordTool("b", nil))
	c := job.AddTool(newRecordTool("c", nil))
	require.NoError(t, job.Connect(b.ID(), c.ID()))
	require.NoError(t, job.Connect(c.ID(), b.ID()))

	_, _, err := job.Run(context.Background(), testFrame(), nil)
	require.True(t, apperrors.Is(err, apperrors.CodeCycleDetected))
}

func TestJob_RunIsDeterministic(t *testing.T) {
	job := NewJob("j")
	a := job.AddTool(newRecordTool("a", nil))
	b := job.AddTool(newRecordTool("b", nil))
	c := job.AddTool(newRecordTool("c", nil))
	require.NoError(t, job.Connect(a.ID(), b.ID()))
	require.NoError(t, job.Connect(a.ID(), c.ID()))

	in := testFrame()
	_, first, err := job.Run(context.Background(), in, Context{KeyForceSave: true})
	require.NoError(t, err)
	_, second, err := job.Run(context.Background(), in, Context{KeyForceSave: true})
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestJob_HasKind(t *testing.T) {
	job := NewJob("j")
	job.AddTool(NewGenericTool("src"))
	require.True(t, job.HasKind(KindGeneric))
	require.False(t, job.HasKind(KindDetection))
}
