package workflows

import (
	"context"
	"errors"
	"testing"

	"paperwhisper/internal/activities"
	"paperwhisper/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func newIngestEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(PaperIngestWorkflow)
	registerActivityName(env, "UpdatePaperStatusActivity", func(context.Context, activities.UpdatePaperStatusInput) error { return nil })
	registerActivityName(env, "ExtractTextActivity", func(context.Context, activities.ExtractTextInput) (activities.ExtractTextOutput, error) {
		return activities.ExtractTextOutput{}, nil
	})
	registerActivityName(env, "ParseDocumentActivity", func(context.Context, activities.ParseDocumentInput) (activities.ParseDocumentOutput, error) {
		return activities.ParseDocumentOutput{}, nil
	})
	registerActivityName(env, "VectorizeActivity", func(context.Context, activities.VectorizeInput) (activities.VectorizeOutput, error) {
		return activities.VectorizeOutput{}, nil
	})
	registerActivityName(env, "WriteArtifactsActivity", func(context.Context, activities.WriteArtifactsInput) (activities.WriteArtifactsOutput, error) {
		return activities.WriteArtifactsOutput{}, nil
	})
	return env
}

func TestPaperIngestWorkflowSuccess(t *testing.T) {
	env := newIngestEnv(t)
	var statuses []activities.UpdatePaperStatusInput
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).Return(func(_ context.Context, in activities.UpdatePaperStatusInput) error {
		statuses = append(statuses, in)
		return nil
	})
	env.OnActivity("ExtractTextActivity", mock.Anything, activities.ExtractTextInput{PaperPath: "/tmp/p.pdf"}).Return(activities.ExtractTextOutput{Text: "# Title\n\nbody"}, nil)
	env.OnActivity("ParseDocumentActivity", mock.Anything, activities.ParseDocumentInput{PaperID: "paper123", Text: "# Title\n\nbody"}).Return(activities.ParseDocumentOutput{Title: "Title", SectionCount: 1}, nil)
	env.OnActivity("VectorizeActivity", mock.Anything, activities.VectorizeInput{PaperID: "paper123"}).Return(activities.VectorizeOutput{ChunkCount: 4, Dimension: 8}, nil)
	env.OnActivity("WriteArtifactsActivity", mock.Anything, mock.Anything).Return(activities.WriteArtifactsOutput{Dir: "/out/paper123"}, nil)

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{PaperID: "paper123", Filename: "p.pdf", PaperPath: "/tmp/p.pdf"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "completed", out)

	res, err := env.QueryWorkflow(QueryGetPaperStatus)
	require.NoError(t, err)
	var st PaperStatus
	require.NoError(t, res.Get(&st))
	require.Equal(t, models.StatusCompleted, st.Status)
	require.Equal(t, 100, st.Progress)
	require.Equal(t, 4, st.ChunkCount)
	require.Equal(t, "done", st.Steps["vectorize"])

	require.NotEmpty(t, statuses)
	require.Equal(t, models.StatusCompleted, statuses[len(statuses)-1].Status)
}

func TestPaperIngestWorkflowNoTextFailsGracefully(t *testing.T) {
	env := newIngestEnv(t)
	var last activities.UpdatePaperStatusInput
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).Return(func(_ context.Context, in activities.UpdatePaperStatusInput) error {
		last = in
		return nil
	})
	env.OnActivity("ExtractTextActivity", mock.Anything, mock.Anything).Return(activities.ExtractTextOutput{},
		temporal.NewApplicationError("no extractable text found in PDF", activities.ErrTypeNoText))

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{PaperID: "paper123", PaperPath: "/tmp/p.pdf"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out)
	require.Equal(t, models.StatusFailed, last.Status)
	require.Equal(t, noTextReason, last.FailReason)
}

func TestPaperIngestWorkflowDimensionMismatchFailsGracefully(t *testing.T) {
	env := newIngestEnv(t)
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, mock.Anything).Return(activities.ExtractTextOutput{Text: "body"}, nil)
	env.OnActivity("ParseDocumentActivity", mock.Anything, mock.Anything).Return(activities.ParseDocumentOutput{}, nil)
	env.OnActivity("VectorizeActivity", mock.Anything, mock.Anything).Return(activities.VectorizeOutput{},
		temporal.NewApplicationError("vector dimension mismatch", activities.ErrTypeDimensionMismatch))

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{PaperID: "paper123", PaperPath: "/tmp/p.pdf"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	res, err := env.QueryWorkflow(QueryGetPaperStatus)
	require.NoError(t, err)
	var st PaperStatus
	require.NoError(t, res.Get(&st))
	require.Equal(t, models.StatusFailed, st.Status)
	require.Equal(t, "failed", st.Steps["vectorize"])
}

func TestPaperIngestWorkflowConfigErrorNotRetried(t *testing.T) {
	env := newIngestEnv(t)
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, mock.Anything).Return(activities.ExtractTextOutput{Text: "body"}, nil)
	env.OnActivity("ParseDocumentActivity", mock.Anything, mock.Anything).Return(activities.ParseDocumentOutput{}, nil)
	calls := 0
	env.OnActivity("VectorizeActivity", mock.Anything, mock.Anything).Return(func(context.Context, activities.VectorizeInput) (activities.VectorizeOutput, error) {
		calls++
		return activities.VectorizeOutput{}, temporal.NewApplicationError("missing provider credentials", "config")
	})

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{PaperID: "paper123", PaperPath: "/tmp/p.pdf"})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	require.Equal(t, 1, calls)
}

func TestPaperIngestWorkflowRetriesTransient(t *testing.T) {
	env := newIngestEnv(t)
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).Return(nil)
	calls := 0
	env.OnActivity("ExtractTextActivity", mock.Anything, mock.Anything).Return(func(context.Context, activities.ExtractTextInput) (activities.ExtractTextOutput, error) {
		calls++
		if calls < 3 {
			return activities.ExtractTextOutput{}, temporal.NewApplicationError("connection reset", "transient")
		}
		return activities.ExtractTextOutput{Text: "body"}, nil
	})
	env.OnActivity("ParseDocumentActivity", mock.Anything, mock.Anything).Return(activities.ParseDocumentOutput{}, nil)
	env.OnActivity("VectorizeActivity", mock.Anything, mock.Anything).Return(activities.VectorizeOutput{ChunkCount: 1}, nil)
	env.OnActivity("WriteArtifactsActivity", mock.Anything, mock.Anything).Return(activities.WriteArtifactsOutput{}, errors.New("disk full"))

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{PaperID: "paper123", PaperPath: "/tmp/p.pdf"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	require.Equal(t, 3, calls)

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "completed", out)
}

func TestSummaryWorkflowReportsPartialFailure(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SummaryWorkflow)
	registerActivityName(env, "SummarizeActivity", func(context.Context, activities.SummarizeInput) (activities.JobOutput, error) {
		return activities.JobOutput{}, nil
	})
	env.OnActivity("SummarizeActivity", mock.Anything, activities.SummarizeInput{PaperID: "p1"}).
		Return(activities.JobOutput{Status: models.StatusFailed, FailReason: "overall summary: boom", Items: 2}, nil)

	env.ExecuteWorkflow(SummaryWorkflow, SummaryInput{PaperID: "p1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	res, err := env.QueryWorkflow(QueryGetJobStatus)
	require.NoError(t, err)
	var st JobStatus
	require.NoError(t, res.Get(&st))
	require.Equal(t, models.StatusFailed, st.Status)
	require.Equal(t, 2, st.Items)
	require.Equal(t, "summary", st.Job)
}

func TestTranslationWorkflowCompletes(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(TranslationWorkflow)
	registerActivityName(env, "TranslateActivity", func(context.Context, activities.TranslateInput) (activities.JobOutput, error) {
		return activities.JobOutput{}, nil
	})
	env.OnActivity("TranslateActivity", mock.Anything, activities.TranslateInput{PaperID: "p1", TargetLanguage: "French"}).
		Return(activities.JobOutput{Status: models.StatusCompleted, Items: 5}, nil)

	env.ExecuteWorkflow(TranslationWorkflow, TranslationInput{PaperID: "p1", TargetLanguage: "French"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "completed", out)
}

func TestWorkflowIDs(t *testing.T) {
	require.Equal(t, "paper-ingest-abc", IngestWorkflowID("abc"))
	require.Equal(t, "paper-summary-abc", SummaryWorkflowID("abc"))
	require.Equal(t, "paper-translate-abc-simplified-chinese", TranslationWorkflowID("abc", "Simplified Chinese"))
}
