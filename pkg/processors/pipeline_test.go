package processors

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coarsen-md/coarsen/pkg/molecule"
)

type stubProcessor struct {
	name string
	err  error
	runs int
}

func (s *stubProcessor) Name() string { return s.name }

func (s *stubProcessor) RunSystem(_ context.Context, _ *molecule.System) error {
	s.runs++

	return s.err
}

func TestPipelineRunsStagesInOrder(t *testing.T) {
	t.Parallel()

	first := &stubProcessor{name: "first"}
	second := &stubProcessor{name: "second"}

	p := NewPipeline([]Processor{first, second}, WithLogger(slog.New(slog.DiscardHandler)))

	require.NoError(t, p.Run(context.Background(), molecule.NewSystem()))
	assert.Equal(t, 1, first.runs)
	assert.Equal(t, 1, second.runs)
}

func TestPipelineStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	failing := &stubProcessor{name: "failing", err: boom}
	after := &stubProcessor{name: "after"}

	p := NewPipeline([]Processor{failing, after})

	err := p.Run(context.Background(), molecule.NewSystem())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")
	assert.Equal(t, 0, after.runs, "stages after a failure must not run")
}

func TestPipelineEmptyIsNoop(t *testing.T) {
	t.Parallel()

	p := NewPipeline(nil)
	require.NoError(t, p.Run(context.Background(), molecule.NewSystem()))
}
