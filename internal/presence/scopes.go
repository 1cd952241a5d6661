package presence

// SwitchProject migrates this session's project-scoped record. Switching
// to the current project is a no-op. Leaving a project also leaves its
// canvas: the canvas record is removed and the canvas pointer cleared
// until the caller switches onto a canvas of the new project.
//
// Removal of the old record is best-effort and never blocks navigation: if
// it fails the hook stays installed and readers drop the stale record once
// it passes the offline timeout.
func (s *Session) SwitchProject(projectID string) {
	s.mu.Lock()
	if s.closed || s.projectID == projectID {
		s.mu.Unlock()
		return
	}

	userID := s.identity.UserID
	connID := s.connectionID

	var removals []Scope
	if s.canvasID != "" {
		removals = append(removals, CanvasScope(s.projectID, s.canvasID))
		s.canvasID = ""
	}
	if s.projectID != "" {
		removals = append(removals, ProjectScope(s.projectID))
	}

	s.projectID = projectID
	s.cursor = nil
	s.selection = nil

	var next *Scope
	var rec Record
	if projectID != "" {
		scope := ProjectScope(projectID)
		rec = s.recordForLocked(scope)
		next = &scope
	}
	s.mu.Unlock()

	for _, scope := range removals {
		s.w.remove(scope, userID, connID)
	}
	if next != nil {
		// same connection id: this is navigation, not reconnection
		s.w.installAutoRemove(*next, userID, connID)
		s.w.publish(*next, rec)
	}
}

// SwitchCanvas migrates this session's canvas-scoped record within the
// current project. Switching to the current canvas is a no-op. The fresh
// record starts with no cursor and no selection; nothing carries over from
// the canvas being left.
func (s *Session) SwitchCanvas(canvasID string) {
	s.mu.Lock()
	if s.closed || s.canvasID == canvasID {
		s.mu.Unlock()
		return
	}

	userID := s.identity.UserID
	connID := s.connectionID

	var removal *Scope
	if s.canvasID != "" {
		old := CanvasScope(s.projectID, s.canvasID)
		removal = &old
	}

	s.canvasID = canvasID
	s.cursor = nil
	s.selection = nil

	var next *Scope
	var rec Record
	if canvasID != "" {
		scope := CanvasScope(s.projectID, canvasID)
		rec = s.recordForLocked(scope)
		next = &scope
	}
	s.mu.Unlock()

	if removal != nil {
		s.w.remove(*removal, userID, connID)
	}
	if next != nil {
		s.w.installAutoRemove(*next, userID, connID)
		s.w.publish(*next, rec)
	}
}

// CurrentScopes returns the scopes this session currently holds.
func (s *Session) CurrentScopes() []Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heldScopesLocked()
}
