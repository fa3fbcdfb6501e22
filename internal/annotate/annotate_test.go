package annotate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"poem-annotator/internal/cache"
	"poem-annotator/internal/llm"
	"poem-annotator/internal/poem"
	"poem-annotator/internal/prompt"
)

const wellFormed = "【白话翻译】\n译文A\n\n【创作背景】\n背景B\n\n【赏析解读】\n赏析C"

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func jingYeSi() poem.Record {
	return poem.Record{
		ID:      poem.NumberID(1),
		Title:   "静夜思",
		Author:  "李白",
		Dynasty: "唐",
		Content: "床前明月光，疑是地上霜。举头望明月，低头思故乡。",
	}
}

func batch(n int) []poem.Record {
	records := make([]poem.Record, n)
	for i := range records {
		records[i] = poem.Record{
			ID:      poem.NumberID(int64(i + 1)),
			Title:   fmt.Sprintf("诗%d", i+1),
			Author:  "佚名",
			Dynasty: "唐",
			Content: fmt.Sprintf("第%d首的内容", i+1),
		}
	}
	return records
}

// sleepRecorder replaces the pacing wait and records requested delays.
type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func newTestOrchestrator(b llm.Backend, c cache.Cache, opts Options) (*Orchestrator, *sleepRecorder) {
	o := NewOrchestrator(b, c, discard, opts)
	rec := &sleepRecorder{}
	o.sleep = rec.sleep
	return o, rec
}

func titles(results []poem.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Title
	}
	return out
}

func TestGeneratorParsesBackendOutput(t *testing.T) {
	b := new(llm.MockBackend)
	r := jingYeSi()
	b.On("Generate", mock.Anything, prompt.Build(r)).Return(wellFormed, nil).Once()

	got, err := NewGenerator(b, discard).Generate(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, poem.Annotation{Translation: "译文A", Background: "背景B", Appreciation: "赏析C"}, got)
	b.AssertExpectations(t)
}

func TestGeneratorReturnsBackendErrorWithoutRetry(t *testing.T) {
	b := new(llm.MockBackend)
	backendErr := fmt.Errorf("%w: status 500", llm.ErrBackend)
	b.On("Generate", mock.Anything, mock.Anything).Return("", backendErr).Once()

	_, err := NewGenerator(b, discard).Generate(context.Background(), jingYeSi())
	assert.ErrorIs(t, err, llm.ErrBackend)
	assert.Equal(t, backendErr, err)
	b.AssertNumberOfCalls(t, "Generate", 1)
}

func TestGeneratorLogsAbsentMarkers(t *testing.T) {
	b := new(llm.MockBackend)
	b.On("Generate", mock.Anything, mock.Anything).Return("【赏析解读】\n仅有赏析", nil).Once()

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	got, err := NewGenerator(b, log).Generate(context.Background(), jingYeSi())
	require.NoError(t, err)
	assert.Equal(t, "仅有赏析", got.Appreciation)
	assert.Contains(t, buf.String(), "model output lacks section markers")
	assert.Contains(t, buf.String(), "translation")
	assert.Contains(t, buf.String(), "background")
	assert.NotContains(t, buf.String(), "appreciation")
}

func TestGeneratorQuietOnCompleteOutput(t *testing.T) {
	b := new(llm.MockBackend)
	b.On("Generate", mock.Anything, mock.Anything).Return(wellFormed, nil).Once()

	var buf bytes.Buffer
	_, err := NewGenerator(b, slog.New(slog.NewTextHandler(&buf, nil))).Generate(context.Background(), jingYeSi())
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestGeneratorNilBackend(t *testing.T) {
	_, err := NewGenerator(nil, discard).Generate(context.Background(), jingYeSi())
	assert.ErrorIs(t, err, llm.ErrBackend)
}

func TestRunPreservesOrderAndPaces(t *testing.T) {
	records := batch(4)
	b := new(llm.MockBackend)
	b.On("Probe", mock.Anything).Return(nil).Once()
	for _, r := range records {
		b.On("Generate", mock.Anything, prompt.Build(r)).
			Return(fmt.Sprintf("【白话翻译】%s译\n【创作背景】%s景\n【赏析解读】%s析", r.Title, r.Title, r.Title), nil).Once()
	}

	opts := DefaultOptions()
	opts.PacingDelay = 250 * time.Millisecond
	o, rec := newTestOrchestrator(b, nil, opts)

	results, report := o.Run(context.Background(), records)

	require.Len(t, results, 4)
	assert.Equal(t, []string{"诗1", "诗2", "诗3", "诗4"}, titles(results))
	for i, res := range results {
		assert.Equal(t, records[i].ID, res.ID)
		assert.Equal(t, records[i].Title+"译", res.Annotation.Translation)
		assert.Equal(t, records[i].Title+"析", res.Annotation.Appreciation)
	}
	// Pacing between calls, never after the last one.
	assert.Equal(t, []time.Duration{opts.PacingDelay, opts.PacingDelay, opts.PacingDelay}, rec.delays)
	assert.Equal(t, Report{Mode: ModeLive, Total: 4, Succeeded: 4}, report)
	b.AssertExpectations(t)
}

func TestRunOmitsFailedPoem(t *testing.T) {
	records := batch(5)
	b := new(llm.MockBackend)
	b.On("Probe", mock.Anything).Return(nil)
	for i, r := range records {
		if i == 2 {
			b.On("Generate", mock.Anything, prompt.Build(r)).Return("", fmt.Errorf("%w: timeout", llm.ErrBackend)).Once()
			continue
		}
		b.On("Generate", mock.Anything, prompt.Build(r)).Return(wellFormed, nil).Once()
	}

	o, rec := newTestOrchestrator(b, nil, DefaultOptions())
	results, report := o.Run(context.Background(), records)

	assert.Equal(t, []string{"诗1", "诗2", "诗4", "诗5"}, titles(results))
	assert.Equal(t, 4, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, 2, report.Failures[0].Index)
	assert.Equal(t, "诗3", report.Failures[0].Title)
	assert.Len(t, rec.delays, 4)
	b.AssertExpectations(t)
}

func TestRunFallsBackToMockWhenProbeFails(t *testing.T) {
	records := batch(3)
	b := new(llm.MockBackend)
	b.On("Probe", mock.Anything).Return(fmt.Errorf("%w: connection refused", llm.ErrUnavailable)).Once()

	o, rec := newTestOrchestrator(b, nil, DefaultOptions())
	results, report := o.Run(context.Background(), records)

	require.Len(t, results, 3)
	for i, res := range results {
		title := records[i].Title
		assert.Equal(t, records[i].ID, res.ID)
		assert.Equal(t, "这里是《"+title+"》的模拟白话翻译", res.Annotation.Translation)
		assert.Equal(t, "这里是《"+title+"》的模拟创作背景", res.Annotation.Background)
		assert.Equal(t, "这里是《"+title+"》的模拟赏析解读", res.Annotation.Appreciation)
	}
	assert.Equal(t, ModeMock, report.Mode)
	assert.Equal(t, 3, report.Mocked)
	assert.Empty(t, rec.delays)
	b.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestRunWithoutBackendIsMock(t *testing.T) {
	o, _ := newTestOrchestrator(nil, nil, DefaultOptions())
	results, report := o.Run(context.Background(), []poem.Record{jingYeSi()})

	assert.Equal(t, ModeMock, report.Mode)
	assert.Equal(t, []poem.Result{poem.NewResult(jingYeSi(), MockAnnotation("静夜思"))}, results)
}

func TestMockIsDeterministic(t *testing.T) {
	records := batch(2)
	assert.Equal(t, Mock(records), Mock(records))
}

func TestRunSkipsAnnotatedRecords(t *testing.T) {
	records := batch(3)
	records[1].Translation = "已有译文"
	records[1].Background = "已有背景"
	records[1].Appreciation = "已有赏析"

	b := new(llm.MockBackend)
	b.On("Probe", mock.Anything).Return(nil)
	b.On("Generate", mock.Anything, prompt.Build(records[0])).Return(wellFormed, nil).Once()
	b.On("Generate", mock.Anything, prompt.Build(records[2])).Return(wellFormed, nil).Once()

	o, rec := newTestOrchestrator(b, nil, DefaultOptions())
	results, report := o.Run(context.Background(), records)

	require.Len(t, results, 3)
	assert.Equal(t, poem.Annotation{Translation: "已有译文", Background: "已有背景", Appreciation: "已有赏析"}, results[1].Annotation)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 2, report.Succeeded)
	// Two backend calls, one pause between them.
	assert.Len(t, rec.delays, 1)
	b.AssertExpectations(t)
}

func TestRunRegeneratesAnnotatedRecordsWhenSkipDisabled(t *testing.T) {
	r := jingYeSi()
	r.Translation, r.Background, r.Appreciation = "a", "b", "c"

	b := new(llm.MockBackend)
	b.On("Probe", mock.Anything).Return(nil)
	b.On("Generate", mock.Anything, mock.Anything).Return(wellFormed, nil).Once()

	opts := DefaultOptions()
	opts.SkipAnnotated = false
	o, _ := newTestOrchestrator(b, nil, opts)
	results, _ := o.Run(context.Background(), []poem.Record{r})

	require.Len(t, results, 1)
	assert.Equal(t, "译文A", results[0].Annotation.Translation)
}

func TestRunUsesCache(t *testing.T) {
	records := batch(2)
	cached := poem.Annotation{Translation: "缓存译", Background: "缓存景", Appreciation: "缓存析"}
	fresh := poem.Annotation{Translation: "译文A", Background: "背景B", Appreciation: "赏析C"}
	opts := DefaultOptions()

	c := new(cache.MockCache)
	c.On("Get", mock.Anything, cache.Key(prompt.Build(records[0]))).Return(&cached, nil).Once()
	c.On("Get", mock.Anything, cache.Key(prompt.Build(records[1]))).Return(nil, nil).Once()
	c.On("Set", mock.Anything, cache.Key(prompt.Build(records[1])), fresh, opts.CacheTTL).Return(nil).Once()

	b := new(llm.MockBackend)
	b.On("Probe", mock.Anything).Return(nil)
	b.On("Generate", mock.Anything, prompt.Build(records[1])).Return(wellFormed, nil).Once()

	o, rec := newTestOrchestrator(b, c, opts)
	results, report := o.Run(context.Background(), records)

	require.Len(t, results, 2)
	assert.Equal(t, cached, results[0].Annotation)
	assert.Equal(t, fresh, results[1].Annotation)
	assert.Equal(t, 1, report.Cached)
	assert.Equal(t, 1, report.Succeeded)
	assert.Empty(t, rec.delays)
	c.AssertExpectations(t)
	b.AssertExpectations(t)
}

func TestRunCacheErrorsAreNotFatal(t *testing.T) {
	c := new(cache.MockCache)
	c.On("Get", mock.Anything, mock.Anything).Return(nil, errors.New("redis down"))
	c.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))

	b := new(llm.MockBackend)
	b.On("Probe", mock.Anything).Return(nil)
	b.On("Generate", mock.Anything, mock.Anything).Return(wellFormed, nil).Once()

	o, _ := newTestOrchestrator(b, c, DefaultOptions())
	results, report := o.Run(context.Background(), []poem.Record{jingYeSi()})

	require.Len(t, results, 1)
	assert.Equal(t, 1, report.Succeeded)
}

func TestRunDegradedOutputIsKeptButNotCached(t *testing.T) {
	c := new(cache.MockCache)
	c.On("Get", mock.Anything, mock.Anything).Return(nil, nil)

	b := new(llm.MockBackend)
	b.On("Probe", mock.Anything).Return(nil)
	b.On("Generate", mock.Anything, mock.Anything).Return("【赏析解读】\n仅有赏析", nil).Once()

	o, _ := newTestOrchestrator(b, c, DefaultOptions())
	results, report := o.Run(context.Background(), []poem.Record{jingYeSi()})

	require.Len(t, results, 1)
	assert.Equal(t, poem.Annotation{Appreciation: "仅有赏析"}, results[0].Annotation)
	assert.Equal(t, 1, report.Degraded)
	c.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunRetriesWhenConfigured(t *testing.T) {
	b := new(llm.MockBackend)
	b.On("Probe", mock.Anything).Return(nil)
	b.On("Generate", mock.Anything, mock.Anything).Return("", llm.ErrBackend).Twice()
	b.On("Generate", mock.Anything, mock.Anything).Return(wellFormed, nil).Once()

	opts := DefaultOptions()
	opts.MaxAttempts = 3
	opts.RetryBaseDelay = time.Millisecond
	opts.RetryMaxDelay = 5 * time.Millisecond
	o, _ := newTestOrchestrator(b, nil, opts)

	results, report := o.Run(context.Background(), []poem.Record{jingYeSi()})
	require.Len(t, results, 1)
	assert.Equal(t, 1, report.Succeeded)
	b.AssertNumberOfCalls(t, "Generate", 3)
}

func TestRunGivesUpAfterMaxAttempts(t *testing.T) {
	b := new(llm.MockBackend)
	b.On("Probe", mock.Anything).Return(nil)
	b.On("Generate", mock.Anything, mock.Anything).Return("", llm.ErrBackend)

	opts := DefaultOptions()
	opts.MaxAttempts = 2
	opts.RetryBaseDelay = time.Millisecond
	o, _ := newTestOrchestrator(b, nil, opts)

	results, report := o.Run(context.Background(), []poem.Record{jingYeSi()})
	assert.Empty(t, results)
	assert.Equal(t, 1, report.Failed)
	b.AssertNumberOfCalls(t, "Generate", 2)
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	records := batch(3)
	ctx, cancel := context.WithCancel(context.Background())

	b := new(llm.MockBackend)
	b.On("Probe", mock.Anything).Return(nil)
	b.On("Generate", mock.Anything, mock.Anything).Return(wellFormed, nil).Run(func(mock.Arguments) {
		cancel()
	}).Once()

	o := NewOrchestrator(b, nil, discard, DefaultOptions())
	results, report := o.Run(ctx, records)

	assert.Len(t, results, 1)
	assert.True(t, report.Cancelled)
	b.AssertNumberOfCalls(t, "Generate", 1)
}

func TestRunEmptyInput(t *testing.T) {
	b := new(llm.MockBackend)
	b.On("Probe", mock.Anything).Return(nil)

	o, rec := newTestOrchestrator(b, nil, DefaultOptions())
	results, report := o.Run(context.Background(), nil)

	assert.Empty(t, results)
	assert.NotNil(t, results)
	assert.Equal(t, ModeLive, report.Mode)
	assert.Empty(t, rec.delays)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
