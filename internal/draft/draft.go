// Package draft holds the editable copy of a completed assessment. Edits
// never flow back to the server; the draft is only exported on explicit user
// action.
package draft

import (
	"sync"

	"assessment-backend/internal/assessments"
)

// Section names the three editable collections.
type Section string

const (
	SectionHazards    Section = "hazards"
	SectionPPE        Section = "ppe"
	SectionProcedures Section = "procedures"
)

// Direction is a move for reorderable collections.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// New-item defaults. A fresh hazard starts at the middle of both scales.
const (
	defaultLikelihood = 3
	defaultSeverity   = 3
)

// Store owns the draft document. Sections enter and leave edit mode
// independently; cancelling one section never touches another's edits.
type Store struct {
	mu  sync.Mutex
	doc assessments.Document

	// Per-section snapshots taken on edit-mode entry. Presence of a key
	// means the section is in edit mode.
	hazardsSnap    []assessments.Hazard
	ppeSnap        []assessments.PPEItem
	editingHazards bool
	editingPPE     bool
}

// NewStore clones the completed output into a fresh draft.
func NewStore(doc assessments.Document) *Store {
	return &Store{doc: doc.Clone()}
}

// Document returns a copy of the current draft.
func (s *Store) Document() assessments.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// SetNotes replaces the free-text notes field.
func (s *Store) SetNotes(notes string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Notes = notes
}

// UpdateHazard replaces one field of one hazard. Out-of-bounds indices are
// no-ops.
func (s *Store) UpdateHazard(index int, mutate func(*assessments.Hazard)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.doc.Hazards) {
		return
	}
	mutate(&s.doc.Hazards[index])
}

// UpdatePPE replaces one field of one PPE item. Out-of-bounds indices are
// no-ops.
func (s *Store) UpdatePPE(index int, mutate func(*assessments.PPEItem)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.doc.PPEItems) {
		return
	}
	mutate(&s.doc.PPEItems[index])
}

// UpdateProcedure replaces one procedure step. Out-of-bounds indices are
// no-ops.
func (s *Store) UpdateProcedure(index int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.doc.EmergencyProcedures) {
		return
	}
	s.doc.EmergencyProcedures[index] = text
}

// AddItem appends a default element to the named section.
func (s *Store) AddItem(section Section) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch section {
	case SectionHazards:
		s.doc.Hazards = append(s.doc.Hazards, assessments.Hazard{
			Likelihood: defaultLikelihood,
			Severity:   defaultSeverity,
			RiskScore:  defaultLikelihood * defaultSeverity,
		})
	case SectionPPE:
		s.doc.PPEItems = append(s.doc.PPEItems, assessments.PPEItem{})
	case SectionProcedures:
		s.doc.EmergencyProcedures = append(s.doc.EmergencyProcedures, "")
	}
}

// DeleteItem removes the element at index; later elements shift down.
// Out-of-bounds indices are no-ops.
func (s *Store) DeleteItem(section Section, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch section {
	case SectionHazards:
		if index < 0 || index >= len(s.doc.Hazards) {
			return
		}
		s.doc.Hazards = append(s.doc.Hazards[:index], s.doc.Hazards[index+1:]...)
	case SectionPPE:
		if index < 0 || index >= len(s.doc.PPEItems) {
			return
		}
		s.doc.PPEItems = append(s.doc.PPEItems[:index], s.doc.PPEItems[index+1:]...)
	case SectionProcedures:
		if index < 0 || index >= len(s.doc.EmergencyProcedures) {
			return
		}
		s.doc.EmergencyProcedures = append(s.doc.EmergencyProcedures[:index], s.doc.EmergencyProcedures[index+1:]...)
	}
}

// MoveProcedure swaps a procedure with its neighbour. Moving the first step
// up or the last step down is a no-op.
func (s *Store) MoveProcedure(index int, dir Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	steps := s.doc.EmergencyProcedures
	if index < 0 || index >= len(steps) {
		return
	}
	var target int
	switch dir {
	case DirectionUp:
		target = index - 1
	case DirectionDown:
		target = index + 1
	default:
		return
	}
	if target < 0 || target >= len(steps) {
		return
	}
	steps[index], steps[target] = steps[target], steps[index]
}

// BeginEdit enters edit mode for hazards or PPE, capturing a snapshot to
// restore on Cancel. Re-entering edit mode keeps the original snapshot.
func (s *Store) BeginEdit(section Section) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch section {
	case SectionHazards:
		if s.editingHazards {
			return
		}
		s.editingHazards = true
		s.hazardsSnap = cloneHazards(s.doc.Hazards)
	case SectionPPE:
		if s.editingPPE {
			return
		}
		s.editingPPE = true
		s.ppeSnap = clonePPE(s.doc.PPEItems)
	case SectionProcedures:
	}
}

// Editing reports whether a section is in edit mode.
func (s *Store) Editing(section Section) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch section {
	case SectionHazards:
		return s.editingHazards
	case SectionPPE:
		return s.editingPPE
	default:
		return false
	}
}

// Save commits the section's current state as the new baseline and leaves
// edit mode.
func (s *Store) Save(section Section) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch section {
	case SectionHazards:
		s.editingHazards = false
		s.hazardsSnap = nil
	case SectionPPE:
		s.editingPPE = false
		s.ppeSnap = nil
	case SectionProcedures:
	}
}

// Cancel restores only the named section to the snapshot taken at edit-mode
// entry and leaves edit mode. Other sections' edits are untouched.
func (s *Store) Cancel(section Section) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch section {
	case SectionHazards:
		if !s.editingHazards {
			return
		}
		s.doc.Hazards = s.hazardsSnap
		s.hazardsSnap = nil
		s.editingHazards = false
	case SectionPPE:
		if !s.editingPPE {
			return
		}
		s.doc.PPEItems = s.ppeSnap
		s.ppeSnap = nil
		s.editingPPE = false
	case SectionProcedures:
	}
}

func cloneHazards(in []assessments.Hazard) []assessments.Hazard {
	if in == nil {
		return nil
	}
	out := make([]assessments.Hazard, len(in))
	copy(out, in)
	return out
}

func clonePPE(in []assessments.PPEItem) []assessments.PPEItem {
	if in == nil {
		return nil
	}
	out := make([]assessments.PPEItem, len(in))
	copy(out, in)
	return out
}
