package presence

// SetTyping publishes the typing indicator. Turning it on (re)starts the
// auto-clear window; repeat calls reset the window rather than stacking
// timers. Expiry clears the indicator exactly once, and an explicit
// SetTyping(false) cancels any pending expiry immediately.
func (s *Session) SetTyping(on bool, typingContext string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if on {
		s.typing = true
		s.typingCtx = typingContext
		if s.typingTimer != nil {
			s.typingTimer.Reset(s.opts.TypingTimeout)
		} else {
			s.typingTimer = s.clock.AfterFunc(s.opts.TypingTimeout, s.typingExpired, "presence-typing")
		}
	} else {
		if s.typingTimer != nil {
			s.typingTimer.Stop()
			s.typingTimer = nil
		}
		s.typing = false
		s.typingCtx = ""
	}
	s.mu.Unlock()

	s.publishHeldScopes()
}

func (s *Session) typingExpired() {
	s.mu.Lock()
	if s.closed || !s.typing {
		s.mu.Unlock()
		return
	}
	s.typing = false
	s.typingCtx = ""
	s.typingTimer = nil
	s.mu.Unlock()

	s.publishHeldScopes()
}
