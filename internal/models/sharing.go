package models

// SharingState is either SharingDisabled or SharingEnabled. It is derived
// from the persisted is_shareable/unique_code pair.
type SharingState interface {
	sharingState()
}

// SharingDisabled means the task is private to its owner.
type SharingDisabled struct{}

// SharingEnabled means collaborators may join with Code.
type SharingEnabled struct {
	Code string
}

func (SharingDisabled) sharingState() {}
func (SharingEnabled) sharingState()  {}

// Sharing returns the sharing state of the task. A shareable task without a
// code is treated as disabled so that no submitted code can ever match.
func (t Task) Sharing() SharingState {
	if !t.IsShareable || t.UniqueCode == "" {
		return SharingDisabled{}
	}
	return SharingEnabled{Code: t.UniqueCode}
}

// EnableSharing moves the task to the enabled state with a fresh code.
// Existing collaborators are kept.
func (t *Task) EnableSharing(code string) {
	t.IsShareable = true
	t.UniqueCode = code
}

// DisableSharing makes the task private, clears the code and drops every
// collaborator. It returns the collaborators that were removed.
func (t *Task) DisableSharing() []string {
	removed := t.Collaborators
	t.IsShareable = false
	t.UniqueCode = ""
	t.Collaborators = []string{}
	return removed
}

// HasCollaborator reports whether userID is in the collaborator set.
func (t Task) HasCollaborator(userID string) bool {
	for _, id := range t.Collaborators {
		if id == userID {
			return true
		}
	}
	return false
}
