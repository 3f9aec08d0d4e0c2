package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/notification"
)

type notificationRepository struct {
	db *notificationTable
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) *notificationRepository {
	return &notificationRepository{db: db.notifications}
}

func (repo *notificationRepository) CreateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	stored := n
	repo.db.table[n.ID] = &stored
	return n, nil
}

func (repo *notificationRepository) UpdateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[n.ID]; !ok {
		return notification.Notification{}, core.NewNotFoundError("notification", n.ID)
	}
	stored := n
	repo.db.table[n.ID] = &stored
	return n, nil
}

func (repo *notificationRepository) GetNotification(_ context.Context, id string) (notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if n, ok := repo.db.table[id]; ok {
		return *n, nil
	}
	return notification.Notification{}, core.NewNotFoundError("notification", id)
}

// byStudent returns the student's notifications, newest first. The caller holds the lock.
func (repo *notificationRepository) byStudent(studentID string) []notification.Notification {
	notifs := make([]notification.Notification, 0)
	for _, n := range repo.db.table {
		if n.StudentID == studentID {
			notifs = append(notifs, *n)
		}
	}
	sort.SliceStable(notifs, func(i, j int) bool {
		return notifs[i].CreatedAt.After(notifs[j].CreatedAt)
	})
	return notifs
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, studentID string, filter *notification.QueryFilter) ([]notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	all := repo.byStudent(studentID)
	if filter == nil {
		return all, nil
	}
	notifs := all[:0]
	for _, n := range all {
		if filter.Type != "" && n.Type != filter.Type {
			continue
		}
		if filter.Status != "" && n.Status != filter.Status {
			continue
		}
		notifs = append(notifs, n)
	}
	return notifs, nil
}

func (repo *notificationRepository) FindInstallmentReminder(_ context.Context, studentID, installmentID string, since time.Time) (notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, n := range repo.byStudent(studentID) {
		if n.InstallmentID == installmentID && n.Type.IsInstallmentReminder() && !n.CreatedAt.Before(since) {
			return n, nil
		}
	}
	return notification.Notification{}, core.NewNotFoundError("reminder", installmentID)
}

func (repo *notificationRepository) CountUnread(_ context.Context, studentID string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var cnt int
	for _, n := range repo.db.table {
		if n.StudentID == studentID && n.Status.IsUnread() {
			cnt++
		}
	}
	return cnt, nil
}

func (repo *notificationRepository) MarkAllAsRead(_ context.Context, studentID string, readAt time.Time) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var cnt int
	for _, n := range repo.db.table {
		if n.StudentID == studentID && n.Status.IsUnread() {
			if err := n.MarkAsRead(readAt); err != nil {
				return cnt, err
			}
			cnt++
		}
	}
	return cnt, nil
}
