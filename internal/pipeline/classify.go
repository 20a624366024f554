package pipeline

import (
	"errors"

	"github.com/maauso/autoedit/internal/input"
	"github.com/maauso/autoedit/internal/job"
	"github.com/maauso/autoedit/internal/media"
	"github.com/maauso/autoedit/internal/plan"
	"github.com/maauso/autoedit/internal/publish"
	"github.com/maauso/autoedit/internal/render"
)

var classes = []struct {
	target error
	code   job.FailureCode
}{
	{input.ErrInputNotFound, job.FailureInputNotFound},
	{input.ErrDownloadFailed, job.FailureDownloadFailed},
	{media.ErrProbeFailed, job.FailureProbeFailed},
	{plan.ErrNoSegmentsToRender, job.FailureNoSegmentsToRender},
	{render.ErrRenderFailed, job.FailureRenderFailed},
	{publish.ErrUploadFailed, job.FailureUploadFailed},
}

// Classify maps a stage error chain to the failure code recorded on the job.
// Errors outside the known stage taxonomy are UnexpectedError.
func Classify(err error) job.FailureCode {
	for _, c := range classes {
		if errors.Is(err, c.target) {
			return c.code
		}
	}
	return job.FailureUnexpected
}
