package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.UpdatePaperStatusActivity)
	w.RegisterActivity(a.ExtractTextActivity)
	w.RegisterActivity(a.ParseDocumentActivity)
	w.RegisterActivity(a.VectorizeActivity)
	w.RegisterActivity(a.WriteArtifactsActivity)
	w.RegisterActivity(a.SummarizeActivity)
	w.RegisterActivity(a.TranslateActivity)
}
