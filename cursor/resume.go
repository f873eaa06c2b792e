package cursor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kdevan/gchat-bridge/domain"
)

// ResumeFile is the on-disk shape a caller persists between export runs
// (§4.6 "Resume"): the cursor triple plus the group it belongs to, so a
// persisted file from a different group can be rejected rather than silently
// misapplied.
type ResumeFile struct {
	GroupKind domain.GroupKind `json:"group_kind"`
	GroupID   string           `json:"group_id"`
	Cursor    domain.Cursor    `json:"cursor"`
}

// SaveResume atomically writes state for groupID to filename.
func SaveResume(filename string, groupID domain.GroupId, c domain.Cursor) error {
	rf := ResumeFile{GroupKind: groupID.Kind, GroupID: groupID.ID, Cursor: c}
	data, err := json.MarshalIndent(rf, "", "  ")
	if err != nil {
		return fmt.Errorf("cursor: marshal resume file: %w", err)
	}
	dir := filepath.Dir(filename)
	tmp, err := os.CreateTemp(dir, "cursor-resume-*.json.tmp")
	if err != nil {
		return fmt.Errorf("cursor: create temp resume file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cursor: write temp resume file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cursor: close temp resume file: %w", err)
	}
	if err := os.Rename(tmpName, filename); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cursor: rename temp resume file: %w", err)
	}
	return nil
}

// LoadResume reads a ResumeFile and validates it belongs to groupID
// (§4.6 "A persisted file from a different group is rejected").
func LoadResume(filename string, groupID domain.GroupId) (domain.Cursor, error) {
	data, err := os.ReadFile(filename) // #nosec G304 -- caller-supplied export path
	if err != nil {
		return domain.Cursor{}, fmt.Errorf("cursor: read resume file: %w", err)
	}
	var rf ResumeFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return domain.Cursor{}, fmt.Errorf("cursor: unmarshal resume file: %w", err)
	}
	if rf.GroupKind != groupID.Kind || rf.GroupID != groupID.ID {
		return domain.Cursor{}, fmt.Errorf("cursor: resume file is for a different group (%v/%s), not %v/%s", rf.GroupKind, rf.GroupID, groupID.Kind, groupID.ID)
	}
	return rf.Cursor, nil
}
