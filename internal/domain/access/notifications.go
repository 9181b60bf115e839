package access

import (
	"github.com/carehub/carehub/internal/domain/records"
)

type NotificationFilter struct {
	Type       records.NotificationType
	UnreadOnly bool
}

func (f NotificationFilter) match(n records.Notification) bool {
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	return !f.UnreadOnly || !n.IsRead
}

// ListNotifications returns the principal's own notifications.
func (s *Service) ListNotifications(p Principal, f NotificationFilter) ([]records.Notification, error) {
	return list(s, p, EntityNotification, s.store.Notifications(), f.match)
}

// CreateNotification sends an announcement to one recipient.
func (s *Service) CreateNotification(p Principal, draft records.Notification) (records.Notification, error) {
	return create(s, p, EntityNotification, s.store.Notifications(), "Notification Sent", func(Scope) (records.Notification, error) {
		if err := s.requireUsers("user_id", draft.UserID); err != nil {
			return draft, err
		}
		draft.IsRead = false
		draft.CreatedAt = s.store.Now()
		return draft, nil
	})
}

// MarkNotificationRead sets is_read on one of the principal's notifications.
// Reading is monotonic; marking an already read notification is a no-op
// that still succeeds.
func (s *Service) MarkNotificationRead(p Principal, id string) (records.Notification, error) {
	return update(s, p, EntityNotification, OpUpdate, s.store.Notifications(), id, "Notification Marked Read", func(n *records.Notification) error {
		n.IsRead = true
		return nil
	})
}

// MarkAllNotificationsRead marks every unread notification of p and reports
// how many changed.
func (s *Service) MarkAllNotificationsRead(p Principal) (int, error) {
	if err := authenticated(p); err != nil {
		return 0, s.observe(p, EntityNotification, OpUpdate, "", err)
	}
	scope, err := authorize(p, EntityNotification, OpUpdate)
	if err != nil {
		return 0, s.observe(p, EntityNotification, OpUpdate, "", err)
	}

	c := s.store.Notifications()
	unread := c.Find(func(n records.Notification) bool {
		return scope.Covers(p, n) && !n.IsRead
	})
	marked := 0
	for _, n := range unread {
		_, err := c.Update(n.ID, func(n *records.Notification) error {
			if !scope.Covers(p, *n) {
				return forbidden(p, OpUpdate, EntityNotification)
			}
			n.IsRead = true
			return nil
		})
		if err != nil {
			return marked, s.observe(p, EntityNotification, OpUpdate, n.ID, err)
		}
		marked++
	}
	s.observe(p, EntityNotification, OpUpdate, "", nil)
	if marked > 0 {
		s.audit(p, "Notifications Marked Read", EntityNotification, "")
	}
	return marked, nil
}
