package presence

import (
	"fmt"
	"time"
)

// Stats is the derived view consumers render: counts plus who is typing
// and who is editing, per scope.
type Stats struct {
	Online       int      `json:"online"`
	Active       int      `json:"active"`
	TypingUsers  []string `json:"typingUsers"`
	EditingUsers []string `json:"editingUsers"`
}

// StatsFromRecords derives stats from a member list. Active means doing
// something: idle and away both count as not active.
func StatsFromRecords(members []Record) Stats {
	stats := Stats{TypingUsers: []string{}, EditingUsers: []string{}}
	for _, m := range members {
		if m.Online {
			stats.Online++
		}
		if m.Activity != ActivityIdle && m.Activity != ActivityAway {
			stats.Active++
		}
		if m.Typing {
			stats.TypingUsers = append(stats.TypingUsers, m.UserID)
		}
		if m.Activity == ActivityEditing {
			stats.EditingUsers = append(stats.EditingUsers, m.UserID)
		}
	}
	return stats
}

// Stats returns the derived view of the most recent emission for a
// subscribed scope. Unsubscribed scopes yield zero stats.
func (s *Session) Stats(scope Scope) Stats {
	s.subMu.Lock()
	members := s.latest[scope.Key()]
	s.subMu.Unlock()
	return StatsFromRecords(members)
}

// ActivityDisplayName returns the label shown next to an avatar.
func ActivityDisplayName(a Activity) string {
	switch a {
	case ActivityViewing:
		return "Viewing"
	case ActivityEditing:
		return "Editing"
	case ActivityCollaborating:
		return "Collaborating"
	case ActivityChatting:
		return "Chatting"
	case ActivityPresenting:
		return "Presenting"
	case ActivityAway:
		return "Away"
	default:
		return "Idle"
	}
}

// ActivityColor returns the indicator color for an activity.
func ActivityColor(a Activity) string {
	switch a {
	case ActivityViewing:
		return "#3B82F6"
	case ActivityEditing:
		return "#10B981"
	case ActivityCollaborating:
		return "#8B5CF6"
	case ActivityChatting:
		return "#F59E0B"
	case ActivityPresenting:
		return "#EF4444"
	case ActivityAway:
		return "#6B7280"
	default:
		return "#9CA3AF"
	}
}

// FormatLastSeenAt buckets a last-seen timestamp relative to now.
func FormatLastSeenAt(lastSeen, now time.Time) string {
	diff := now.Sub(lastSeen)
	switch {
	case diff < time.Minute:
		return "Just now"
	case diff < time.Hour:
		return pluralize(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return pluralize(int(diff.Hours()), "hour")
	default:
		return pluralize(int(diff.Hours()/24), "day")
	}
}

// FormatLastSeen buckets a last-seen timestamp against the session clock.
func (s *Session) FormatLastSeen(lastSeen time.Time) string {
	return FormatLastSeenAt(lastSeen, s.clock.Now())
}

// IsUserRecentlyActiveAt reports whether a last-seen stamp is within the
// threshold of now.
func IsUserRecentlyActiveAt(lastSeen, now time.Time, threshold time.Duration) bool {
	return now.Sub(lastSeen) <= threshold
}

// IsUserRecentlyActive checks a last-seen stamp against the session clock.
func (s *Session) IsUserRecentlyActive(lastSeen time.Time, threshold time.Duration) bool {
	return IsUserRecentlyActiveAt(lastSeen, s.clock.Now(), threshold)
}

func pluralize(n int, unit string) string {
	if n <= 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
