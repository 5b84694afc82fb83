package model

import "time"

// RecruitmentCandidate is a prospective raider tracked by the recruitment service.
type RecruitmentCandidate struct {
	ID            ID        `json:"id"`
	GuildID       ID        `json:"guild_id"`
	CandidateName string    `json:"candidate_name"`
	ClassName     string    `json:"class_name"`
	Role          string    `json:"role"`
	Ilvl          float64   `json:"ilvl"`
	Source        string    `json:"source"`
	Notes         string    `json:"notes"`
	Rating        int       `json:"rating"`
	Status        string    `json:"status"`
	CategoryID    ID        `json:"category_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RecruitmentCategory is a pipeline column.
type RecruitmentCategory struct {
	ID           ID     `json:"id"`
	GuildID      ID     `json:"guild_id"`
	CategoryName string `json:"category_name"`
	Custom       bool   `json:"custom"`
}

// RecruitmentHistory is one contact log entry.
type RecruitmentHistory struct {
	ID            ID        `json:"id"`
	GuildID       ID        `json:"guild_id"`
	CandidateName string    `json:"candidate_name"`
	ContactedDate time.Time `json:"contacted_date"`
	Method        string    `json:"method"`
	Response      string    `json:"response"`
}

// CandidateUpdate is a partial candidate update.
type CandidateUpdate struct {
	Rating *int    `json:"rating,omitempty" binding:"omitempty,min=1,max=5"`
	Notes  *string `json:"notes,omitempty"`
}

// CandidateStatusUpdate moves a candidate between statuses or pipeline columns.
type CandidateStatusUpdate struct {
	Status     string `json:"status,omitempty"`
	CategoryID ID     `json:"category_id,omitempty"`
}

// CandidateListResponse is the body of GET /guilds/{id}/recruitment/candidates.
type CandidateListResponse struct {
	Candidates []RecruitmentCandidate `json:"candidates"`
	Count      int                    `json:"count"`
}

// Candidate returns a pointer to the candidate with id.
func (r *CandidateListResponse) Candidate(id ID) *RecruitmentCandidate {
	for i := range r.Candidates {
		if r.Candidates[i].ID == id {
			return &r.Candidates[i]
		}
	}
	return nil
}
