package model

import (
	"encoding/json"
	"time"
)

// Task types tracked per character.
const (
	TaskWeekly = "weekly"
	TaskDaily  = "daily"
)

// TaskItem is one weekly or daily checklist entry.
type TaskItem struct {
	ID          string     `json:"id"`
	Label       string     `json:"label"`
	Done        bool       `json:"done"`
	CompletedAt *time.Time `json:"completed_at"`
}

// TasksResponse is the body of GET /guilds/{id}/characters/{cid}/tasks.
type TasksResponse struct {
	CharacterID   ID         `json:"character_id"`
	CharacterName string     `json:"character_name"`
	CurrentWeek   int        `json:"current_week"`
	WeekName      string     `json:"week_name"`
	Weekly        []TaskItem `json:"weekly"`
	Daily         []TaskItem `json:"daily"`
}

// Task returns a pointer to the task of the given type and id.
func (r *TasksResponse) Task(taskType, id string) *TaskItem {
	list := r.Weekly
	if taskType == TaskDaily {
		list = r.Daily
	}
	for i := range list {
		if list[i].ID == id {
			return &list[i]
		}
	}
	return nil
}

// TaskToggle is the body posted when a task is checked or unchecked.
type TaskToggle struct {
	TaskID     string `json:"task_id" binding:"required"`
	TaskType   string `json:"task_type" binding:"required,oneof=weekly daily"`
	WeekNumber int    `json:"week_number"`
	Completed  bool   `json:"completed"`
}

// CrestEntry is the body posted when a weekly crest count changes.
type CrestEntry struct {
	CrestType  string `json:"crest_type" binding:"required,oneof=Weathered Carved Runed Gilded"`
	WeekNumber int    `json:"week_number"`
	Collected  int    `json:"collected"`
}

// CrestTypes lists the tracked upgrade currencies.
var CrestTypes = []string{"Weathered", "Carved", "Runed", "Gilded"}

// ProfessionUpdate is the body put when a profession field changes.
type ProfessionUpdate struct {
	Profession      string `json:"profession" binding:"required"`
	KnowledgePoints *int   `json:"knowledge_points,omitempty"`
	Concentration   *int   `json:"concentration,omitempty"`
}

// GuildMessage is the guild master's weekly message.
type GuildMessage struct {
	GuildID   ID        `json:"guild_id"`
	GMMessage string    `json:"gm_message"`
	CreatedAt time.Time `json:"created_at"`
}

// ProgressOverview aggregates the progress landing page. Each section is
// independent: a nil section failed to load.
type ProgressOverview struct {
	Characters json.RawMessage   `json:"characters"`
	Message    json.RawMessage   `json:"message"`
	Roadmap    json.RawMessage   `json:"roadmap"`
	Errors     map[string]string `json:"errors,omitempty"`
}

// TeamProgress aggregates the team progress page.
type TeamProgress struct {
	Members json.RawMessage   `json:"members"`
	Roadmap json.RawMessage   `json:"roadmap"`
	Errors  map[string]string `json:"errors,omitempty"`
}
