package workflows

import (
	"strings"
	"time"

	"paperwhisper/internal/activities"
	"paperwhisper/internal/models"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	QueryGetPaperStatus = "GetPaperStatus"
	QueryGetJobStatus   = "GetJobStatus"
)

const (
	noTextReason = "no extractable text found (OCR not enabled)"
	jobSummary   = "summary"
	jobTranslate = "translation"
)

func IngestWorkflowID(paperID string) string { return "paper-ingest-" + paperID }

func SummaryWorkflowID(paperID string) string { return "paper-summary-" + paperID }

func TranslationWorkflowID(paperID, targetLanguage string) string {
	return "paper-translate-" + paperID + "-" + sanitizeID(targetLanguage)
}

func activityOptions(timeout time.Duration) workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        2 * time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        20 * time.Second,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: activities.NonRetryableErrorTypes,
		},
	}
}

// PaperIngestWorkflow takes an uploaded file to a searchable paper. Papers
// without text or embedded with the wrong dimension end as failed without
// failing the workflow.
func PaperIngestWorkflow(ctx workflow.Context, input PaperIngestInput) (string, error) {
	status := PaperStatus{
		PaperID:     input.PaperID,
		Filename:    input.Filename,
		Status:      models.StatusProcessing,
		CurrentStep: "init",
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetPaperStatus, func() (PaperStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions(5*time.Minute))
	logger := workflow.GetLogger(ctx)

	begin := func(step string, progress int) {
		status.CurrentStep = step
		status.Progress = progress
		status.Steps[step] = "processing"
		_ = workflow.ExecuteActivity(ctx, "UpdatePaperStatusActivity", activities.UpdatePaperStatusInput{
			PaperID: input.PaperID, Status: models.StatusProcessing, Progress: progress, Step: step,
		}).Get(ctx, nil)
	}
	fail := func(reason string) {
		status.Status = models.StatusFailed
		status.FailReason = reason
		status.Steps[status.CurrentStep] = "failed"
		if err := workflow.ExecuteActivity(ctx, "UpdatePaperStatusActivity", activities.UpdatePaperStatusInput{
			PaperID: input.PaperID, Status: models.StatusFailed, FailReason: reason,
		}).Get(ctx, nil); err != nil {
			logger.Warn("mark paper failed", "paper_id", input.PaperID, "error", err)
		}
	}
	// expected reports whether err is a paper-level failure that ends the run
	// cleanly.
	expected := func(err error) (string, bool) {
		switch {
		case activities.IsErrorType(err, activities.ErrTypeNoText):
			return noTextReason, true
		case activities.IsErrorType(err, activities.ErrTypeDimensionMismatch):
			return "embedding dimension does not match the vector collection", true
		}
		return "", false
	}
	run := func(err error) (string, error) {
		if reason, ok := expected(err); ok {
			fail(reason)
			return string(status.Status), nil
		}
		fail(err.Error())
		return "", err
	}

	begin("extract_text", 10)
	var textOut activities.ExtractTextOutput
	if err := workflow.ExecuteActivity(ctx, "ExtractTextActivity", activities.ExtractTextInput{PaperPath: input.PaperPath}).Get(ctx, &textOut); err != nil {
		return run(err)
	}
	status.Steps[status.CurrentStep] = "done"

	begin("parse", 30)
	var parseOut activities.ParseDocumentOutput
	if err := workflow.ExecuteActivity(ctx, "ParseDocumentActivity", activities.ParseDocumentInput{PaperID: input.PaperID, Text: textOut.Text}).Get(ctx, &parseOut); err != nil {
		return run(err)
	}
	status.Steps[status.CurrentStep] = "done"

	begin("vectorize", 50)
	vctx := workflow.WithStartToCloseTimeout(ctx, 20*time.Minute)
	var vecOut activities.VectorizeOutput
	if err := workflow.ExecuteActivity(vctx, "VectorizeActivity", activities.VectorizeInput{PaperID: input.PaperID}).Get(ctx, &vecOut); err != nil {
		return run(err)
	}
	status.ChunkCount = vecOut.ChunkCount
	status.Steps[status.CurrentStep] = "done"

	begin("write_artifacts", 90)
	if err := workflow.ExecuteActivity(ctx, "WriteArtifactsActivity", activities.WriteArtifactsInput{PaperID: input.PaperID}).Get(ctx, nil); err != nil {
		// Artifacts are a local mirror; the paper is searchable without them.
		logger.Warn("write artifacts failed", "paper_id", input.PaperID, "error", err)
		status.Steps[status.CurrentStep] = "failed"
	} else {
		status.Steps[status.CurrentStep] = "done"
	}

	status.CurrentStep = "done"
	if err := workflow.ExecuteActivity(ctx, "UpdatePaperStatusActivity", activities.UpdatePaperStatusInput{
		PaperID: input.PaperID, Status: models.StatusCompleted,
	}).Get(ctx, nil); err != nil {
		return "", err
	}
	status.Status = models.StatusCompleted
	status.Progress = 100
	logger.Info("paper ingested", "paper_id", input.PaperID, "chunks", vecOut.ChunkCount, "sections", parseOut.SectionCount)
	return string(status.Status), nil
}

func SummaryWorkflow(ctx workflow.Context, input SummaryInput) (string, error) {
	return runJob(ctx, jobSummary, input.PaperID, "SummarizeActivity", activities.SummarizeInput{PaperID: input.PaperID})
}

func TranslationWorkflow(ctx workflow.Context, input TranslationInput) (string, error) {
	return runJob(ctx, jobTranslate, input.PaperID, "TranslateActivity", activities.TranslateInput{
		PaperID:        input.PaperID,
		SourceLanguage: input.SourceLanguage,
		TargetLanguage: input.TargetLanguage,
	})
}

// runJob executes one long LLM activity and exposes its state through
// GetJobStatus. The activity stores partial results itself.
func runJob(ctx workflow.Context, job, paperID, activityName string, in any) (string, error) {
	status := JobStatus{PaperID: paperID, Job: job, Status: models.StatusProcessing}
	if err := workflow.SetQueryHandler(ctx, QueryGetJobStatus, func() (JobStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions(time.Hour))

	var out activities.JobOutput
	if err := workflow.ExecuteActivity(ctx, activityName, in).Get(ctx, &out); err != nil {
		status.Status = models.StatusFailed
		status.FailReason = err.Error()
		return "", err
	}
	status.Status = out.Status
	status.Items = out.Items
	status.FailReason = out.FailReason
	return string(status.Status), nil
}

func sanitizeID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, s)
}
