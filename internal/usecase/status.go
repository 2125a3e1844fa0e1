package usecase

import (
	"context"

	"github.com/aratatotsuka/foundry-slide-html-generator/internal/domain"
)

// JobStatusResponse is the wire shape served by GET /api/jobs/{jobId}.
type JobStatusResponse struct {
	Status        domain.JobStatus `json:"status"`
	Step          string           `json:"step,omitempty"`
	Error         string           `json:"error,omitempty"`
	PreviewPngURL string           `json:"previewPngUrl,omitempty"`
	Sources       domain.Sources   `json:"sources"`
}

// StatusService reads job state for the HTTP surface.
type StatusService struct {
	Store domain.JobStore
}

// NewStatusService constructs a StatusService.
func NewStatusService(store domain.JobStore) StatusService {
	return StatusService{Store: store}
}

// Fetch builds the status response. previewPngUrl is populated iff the job
// succeeded and the PNG artifact exists on disk.
func (s StatusService) Fetch(ctx context.Context, jobID string) (JobStatusResponse, error) {
	st, err := s.Store.Get(ctx, jobID)
	if err != nil {
		return JobStatusResponse{}, err
	}
	resp := JobStatusResponse{
		Status:  st.Status,
		Step:    st.Step,
		Error:   st.Error,
		Sources: st.Sources,
	}
	if resp.Sources.URLs == nil {
		resp.Sources.URLs = []string{}
	}
	if resp.Sources.Files == nil {
		resp.Sources.Files = []string{}
	}
	if st.Status == domain.JobSucceeded {
		if _, ok := s.Store.PreviewPNGPath(jobID); ok {
			resp.PreviewPngURL = "/api/jobs/" + jobID + "/preview.png"
		}
	}
	return resp, nil
}
