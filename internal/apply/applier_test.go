package apply

import (
	"context"
	"testing"

	ctxstore "github.com/jabolina/contextd/internal/context"
	"github.com/jabolina/contextd/internal/generator"
	"github.com/jabolina/contextd/internal/logging"
	"github.com/stretchr/testify/require"
)

func newTestApplier(selfID int) *Applier {
	return New(selfID, ctxstore.New(), generator.NullGenerator{}, NewResponses(), logging.New("test"))
}

func TestApply_Create(t *testing.T) {
	a := newTestApplier(0)
	a.Apply(context.Background(), "create 1", true, 0)

	text, ok := a.Store().Get(1)
	require.True(t, ok)
	require.Equal(t, "", text)
	require.Equal(t, 1, a.NextOp())
}

func TestApply_CreateDuplicate_StillConsumesSlot(t *testing.T) {
	a := newTestApplier(0)
	a.Apply(context.Background(), "create 1", true, 0)
	a.Apply(context.Background(), "create 1", true, 0)

	require.Equal(t, 2, a.NextOp())
}

func TestApply_MalformedCommand_ConsumesSlotNoEffect(t *testing.T) {
	a := newTestApplier(0)
	a.Apply(context.Background(), "create abc", true, 0)

	_, ok := a.Store().Get(0)
	require.False(t, ok)
	require.Equal(t, 1, a.NextOp())
}

func TestApply_QueryOnLeader_RecordsResponse_NoSend(t *testing.T) {
	a := newTestApplier(0)
	a.Apply(context.Background(), "create 1", true, 0)
	out := a.Apply(context.Background(), "query 1 hello world", true, 0)

	require.False(t, out.SendResponse)
	text, _ := a.Store().Get(1)
	require.Equal(t, "Query: hello world", text)

	responses := a.Responses().Get(1)
	require.Contains(t, responses, 0)
}

func TestApply_QueryOnFollower_SendsResponse(t *testing.T) {
	a := newTestApplier(1)
	a.Apply(context.Background(), "create 1", false, 0)
	out := a.Apply(context.Background(), "query 1 hello", false, 0)

	require.True(t, out.SendResponse)
}

func TestApply_QueryOnMissingContext(t *testing.T) {
	a := newTestApplier(0)
	out := a.Apply(context.Background(), "query 7 hi", true, 0)
	require.False(t, out.SendResponse)
	require.Equal(t, 1, a.NextOp())
}

func TestApply_Choose(t *testing.T) {
	a := newTestApplier(0)
	a.Apply(context.Background(), "create 1", true, 0)
	a.Apply(context.Background(), "query 1 hello", true, 0)
	a.responses.Record(1, 0, "candidate answer")

	a.Apply(context.Background(), "choose 1 candidate answer", true, 0)

	text, _ := a.Store().Get(1)
	require.Contains(t, text, "Answer: candidate answer")

	// Choosing evicts the collected candidates for this context.
	require.Empty(t, a.Responses().Get(1))
}

func TestApply_ChooseOnMissingContext(t *testing.T) {
	a := newTestApplier(0)
	a.Apply(context.Background(), "choose 9 answer", true, 0)
	require.Equal(t, 1, a.NextOp())
}

func TestParse_Create(t *testing.T) {
	cmd, err := Parse("create 7")
	require.NoError(t, err)
	require.Equal(t, Create, cmd.Kind)
	require.Equal(t, 7, cmd.ContextID)
}

func TestParse_Query(t *testing.T) {
	cmd, err := Parse("query 7 what is the meaning of life")
	require.NoError(t, err)
	require.Equal(t, Query, cmd.Kind)
	require.Equal(t, 7, cmd.ContextID)
	require.Equal(t, "what is the meaning of life", cmd.Text)
}

func TestParse_NonDigitID(t *testing.T) {
	_, err := Parse("create abc")
	require.Error(t, err)
}

func TestParse_UnknownVerb(t *testing.T) {
	_, err := Parse("destroy 1")
	require.Error(t, err)
}
