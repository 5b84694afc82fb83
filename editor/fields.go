package editor

import (
	"context"
	"fmt"

	"github.com/hoolgg/hool/gateway/model"
	"github.com/hoolgg/hool/gateway/upstream"
)

// CrestKey names the draft of one crest counter.
func CrestKey(characterID, crestType string, week int) string {
	return fmt.Sprintf("crest:%s:%s:%d", characterID, crestType, week)
}

// ProfessionKey names the draft of one profession row.
func ProfessionKey(guildID, characterID, profession string) string {
	return fmt.Sprintf("profession:%s:%s:%s", guildID, characterID, profession)
}

// NotesKey names the draft of a candidate's notes.
func NotesKey(guildID, candidateID string) string {
	return fmt.Sprintf("notes:%s:%s", guildID, candidateID)
}

// CrestsPath is the progress-service path of the caller's crest counters
// for one character.
func CrestsPath(characterID string) string {
	return "/users/me/characters/" + escape(characterID) + "/crests"
}

// ClampCrest bounds a crest count to [0, cap].
func ClampCrest(collected, cap int) int {
	if collected < 0 {
		return 0
	}
	if cap > 0 && collected > cap {
		return cap
	}
	return collected
}

// EditCrest records a crest count, clamped to the weekly cap, and saves it
// once edits settle.
func (s *Service) EditCrest(ctx context.Context, sess *upstream.Session, owner int64, characterID string, entry model.CrestEntry) (Draft, error) {
	entry.Collected = ClampCrest(entry.Collected, s.opts.CrestCap)
	path := CrestsPath(characterID)
	return s.edit(ctx, sess, owner, CrestKey(characterID, entry.CrestType, entry.WeekNumber), entry,
		func(ctx context.Context, sess *upstream.Session) error {
			return s.progress.Post(ctx, sess, path, entry, nil)
		})
}

// EditProfession records a profession field change and saves it once edits
// settle.
func (s *Service) EditProfession(ctx context.Context, sess *upstream.Session, owner int64, guildID, characterID string, upd model.ProfessionUpdate) (Draft, error) {
	path := "/guilds/" + escape(guildID) + "/characters/" + escape(characterID) + "/professions"
	return s.edit(ctx, sess, owner, ProfessionKey(guildID, characterID, upd.Profession), upd,
		func(ctx context.Context, sess *upstream.Session) error {
			return s.progress.Put(ctx, sess, path, upd, nil)
		})
}

// EditNotes records a candidate's notes and saves them once edits settle.
func (s *Service) EditNotes(ctx context.Context, sess *upstream.Session, owner int64, guildID, candidateID, notes string) (Draft, error) {
	body := model.CandidateUpdate{Notes: &notes}
	return s.edit(ctx, sess, owner, NotesKey(guildID, candidateID), body,
		func(ctx context.Context, sess *upstream.Session) error {
			return s.recruitment.Put(ctx, sess, candidatePath(guildID, candidateID), body, nil)
		})
}

func candidatePath(guildID, candidateID string) string {
	return "/guilds/" + escape(guildID) + "/recruitment/candidates/" + escape(candidateID)
}
