package domain

import "strings"

// StudyField is a subject that questions and tests are filed under.
type StudyField struct {
	ID           string `json:"id"`
	Archived     bool   `json:"archived,omitempty"`
	Name         string `json:"name"`
	Organization string `json:"organization,omitempty"`
}

func (f StudyField) GetID() string               { return f.ID }
func (f StudyField) IsArchived() bool            { return f.Archived }
func (f StudyField) WithID(id string) StudyField { f.ID = id; return f }
func (f StudyField) SearchText() string          { return f.Name + " " + f.Organization }

func (f StudyField) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return invalid("name", "is required")
	}
	return nil
}
