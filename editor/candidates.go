package editor

import (
	"context"
	"net/http"
	"net/url"

	"github.com/hoolgg/hool/gateway/model"
	"github.com/hoolgg/hool/gateway/optimistic"
	"github.com/hoolgg/hool/gateway/upstream"
	"go.uber.org/zap"
)

// CandidateResult is a candidate after an optimistic change.
type CandidateResult struct {
	Candidate *model.RecruitmentCandidate `json:"candidate"`
	Outcome   optimistic.Outcome          `json:"outcome"`
	Err       error                       `json:"-"`
}

func candidatesKey(owner int64, guildID string) string {
	return stateKey(owner, "candidates", guildID)
}

// Candidates lists a guild's candidates with the given filters and makes
// the list the caller's working state for that guild.
func (s *Service) Candidates(ctx context.Context, sess *upstream.Session, owner int64, guildID string, filters url.Values) (*model.CandidateListResponse, error) {
	var list model.CandidateListResponse
	path := "/guilds/" + escape(guildID) + "/recruitment/candidates"
	if err := s.recruitment.Do(ctx, sess, http.MethodGet, path, filters, nil, &list); err != nil {
		return nil, err
	}
	if list.Candidates == nil {
		list.Candidates = []model.RecruitmentCandidate{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store(ctx, candidatesKey(owner, guildID), &list); err != nil {
		s.logger.Warn("candidate state write failed", zap.Error(err))
	}
	return &list, nil
}

// RateCandidate sets a candidate's rating right away and reverts it if the
// recruitment service rejects the change.
func (s *Service) RateCandidate(ctx context.Context, sess *upstream.Session, owner int64, guildID, candidateID string, rating int) (CandidateResult, error) {
	var prev int
	return s.changeCandidate(ctx, sess, owner, guildID, candidateID,
		func(c *model.RecruitmentCandidate) {
			prev = c.Rating
			c.Rating = rating
		},
		func(ctx context.Context) error {
			return s.recruitment.Put(ctx, sess, candidatePath(guildID, candidateID), model.CandidateUpdate{Rating: &rating}, nil)
		},
		func(c *model.RecruitmentCandidate) { c.Rating = prev },
	)
}

// MoveCandidate changes a candidate's status or pipeline column right away
// and reverts it if the recruitment service rejects the change.
func (s *Service) MoveCandidate(ctx context.Context, sess *upstream.Session, owner int64, guildID, candidateID string, upd model.CandidateStatusUpdate) (CandidateResult, error) {
	var (
		prevStatus   string
		prevCategory model.ID
	)
	return s.changeCandidate(ctx, sess, owner, guildID, candidateID,
		func(c *model.RecruitmentCandidate) {
			prevStatus, prevCategory = c.Status, c.CategoryID
			if upd.Status != "" {
				c.Status = upd.Status
			}
			if upd.CategoryID != "" {
				c.CategoryID = upd.CategoryID
			}
		},
		func(ctx context.Context) error {
			return s.recruitment.Put(ctx, sess, candidatePath(guildID, candidateID)+"/status", upd, nil)
		},
		func(c *model.RecruitmentCandidate) { c.Status, c.CategoryID = prevStatus, prevCategory },
	)
}

func (s *Service) changeCandidate(
	ctx context.Context, sess *upstream.Session, owner int64, guildID, candidateID string,
	apply func(*model.RecruitmentCandidate), commit func(context.Context) error, revert func(*model.RecruitmentCandidate),
) (CandidateResult, error) {
	key := candidatesKey(owner, guildID)
	id := model.ID(candidateID)
	if err := s.ensureCandidate(ctx, sess, owner, guildID, id); err != nil {
		return CandidateResult{}, err
	}

	res := optimistic.Run(ctx, optimistic.Op{
		Apply: func(ctx context.Context) error {
			return mutate(ctx, s, key, func(l *model.CandidateListResponse) (bool, error) {
				c := l.Candidate(id)
				if c == nil {
					return false, ErrNotFound
				}
				apply(c)
				return true, nil
			})
		},
		Commit: commit,
		Revert: func(ctx context.Context) error {
			return mutate(ctx, s, key, func(l *model.CandidateListResponse) (bool, error) {
				c := l.Candidate(id)
				if c == nil {
					return false, nil
				}
				revert(c)
				return true, nil
			})
		},
	})
	if res.Outcome == optimistic.RolledBack {
		s.logger.Info("candidate change rolled back",
			zap.String("guild_id", guildID), zap.String("candidate_id", candidateID), zap.Error(res.Err))
	}

	var list model.CandidateListResponse
	if _, err := s.load(ctx, key, &list); err != nil {
		return CandidateResult{}, err
	}
	return CandidateResult{Candidate: list.Candidate(id), Outcome: res.Outcome, Err: res.Err}, nil
}

func (s *Service) ensureCandidate(ctx context.Context, sess *upstream.Session, owner int64, guildID string, id model.ID) error {
	var list model.CandidateListResponse
	ok, err := s.load(ctx, candidatesKey(owner, guildID), &list)
	if err != nil {
		return err
	}
	if ok && list.Candidate(id) != nil {
		return nil
	}
	fresh, err := s.Candidates(ctx, sess, owner, guildID, nil)
	if err != nil {
		return err
	}
	if fresh.Candidate(id) == nil {
		return ErrNotFound
	}
	return nil
}
