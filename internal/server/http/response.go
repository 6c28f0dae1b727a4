package httpserver

import (
	"time"

	"github.com/questscholar/litpipeline/internal/pipeline"
)

// Review response types for JSON serialization.

type startReviewResponse struct {
	ReviewID  string    `json:"review_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Message   string    `json:"message"`
}

type reviewStatusResponse struct {
	ReviewID     string               `json:"review_id"`
	Subject      string               `json:"subject"`
	Status       string               `json:"status"`
	Done         bool                 `json:"done"`
	Summary      *pipeline.RunSummary `json:"summary,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
}

type reviewSummaryResponse struct {
	ReviewID        string     `json:"review_id"`
	Subject         string     `json:"subject"`
	Status          string     `json:"status"`
	Done            bool       `json:"done"`
	PapersFound     int        `json:"papers_found"`
	PapersEvaluated int        `json:"papers_evaluated"`
	CreatedAt       time.Time  `json:"created_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	Duration        string     `json:"duration,omitempty"`
}

type listReviewsResponse struct {
	Reviews       []reviewSummaryResponse `json:"reviews"`
	NextPageToken string                  `json:"next_page_token,omitempty"`
	TotalCount    int                     `json:"total_count"`
}

type cancelReviewResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Converter functions

func runStatusToStatusResponse(st RunStatus) reviewStatusResponse {
	resp := reviewStatusResponse{
		ReviewID:  st.RunID,
		Subject:   st.Subject,
		Status:    string(st.Summary.State),
		Done:      st.Done,
		CreatedAt: st.CreatedAt,
	}
	if st.Done {
		resp.Summary = st.Summary
		resp.ErrorMessage = st.Summary.Error
	}
	return resp
}

func runStatusToSummaryResponse(st RunStatus) reviewSummaryResponse {
	resp := reviewSummaryResponse{
		ReviewID:  st.RunID,
		Subject:   st.Subject,
		Status:    string(st.Summary.State),
		Done:      st.Done,
		CreatedAt: st.CreatedAt,
	}
	if st.Done {
		resp.PapersFound = st.Summary.TotalCollected
		resp.PapersEvaluated = st.Summary.Evaluated
		if !st.Summary.FinishedAt.IsZero() {
			finished := st.Summary.FinishedAt
			resp.FinishedAt = &finished
			if d := finished.Sub(st.Summary.StartedAt); d > 0 {
				resp.Duration = d.String()
			}
		}
	}
	return resp
}
