package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aprendesoft/colegio-api/internal/models"
	appErrors "github.com/aprendesoft/colegio-api/pkg/errors"
)

type mockNotificationInbox struct {
	items      []models.NotificationDetail
	total      int
	unread     int
	byOwner    map[string]*models.Notification
	lastFilter models.NotificationFilter
	allRead    int64
}

func (m *mockNotificationInbox) List(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationDetail, int, error) {
	m.lastFilter = filter
	return m.items, m.total, nil
}

func (m *mockNotificationInbox) CountUnread(ctx context.Context, userID string) (int, error) {
	return m.unread, nil
}

func (m *mockNotificationInbox) MarkRead(ctx context.Context, id, userID string) (*models.Notification, error) {
	if n, ok := m.byOwner[id+":"+userID]; ok {
		cp := *n
		cp.Read = true
		return &cp, nil
	}
	return nil, nil
}

func (m *mockNotificationInbox) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return m.allRead, nil
}

func TestInboxListFiltersByCategory(t *testing.T) {
	inbox := &mockNotificationInbox{total: 1, items: []models.NotificationDetail{{}}}
	svc := NewNotificationService(inbox, nil)

	_, page, err := svc.List(context.Background(), Actor{ID: testParentID, Role: models.RoleParent},
		InboxRequest{Category: "Citation", Unread: true})
	require.NoError(t, err)
	require.NotNil(t, inbox.lastFilter.Category)
	assert.Equal(t, models.NotificationCitation, *inbox.lastFilter.Category)
	require.NotNil(t, inbox.lastFilter.Unread)
	assert.True(t, *inbox.lastFilter.Unread)
	assert.Equal(t, testParentID, inbox.lastFilter.UserID)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
}

func TestInboxListRejectsUnknownCategory(t *testing.T) {
	svc := NewNotificationService(&mockNotificationInbox{}, nil)

	_, _, err := svc.List(context.Background(), Actor{ID: testParentID, Role: models.RoleParent},
		InboxRequest{Category: "spam"})
	assertAppError(t, err, appErrors.ErrValidation)
}

func TestMarkReadScopedToOwner(t *testing.T) {
	inbox := &mockNotificationInbox{byOwner: map[string]*models.Notification{
		"notif-1:" + testParentID: {ID: "notif-1", UserID: testParentID},
	}}
	svc := NewNotificationService(inbox, nil)

	updated, err := svc.MarkRead(context.Background(), Actor{ID: testParentID, Role: models.RoleParent}, "notif-1")
	require.NoError(t, err)
	assert.True(t, updated.Read)

	_, err = svc.MarkRead(context.Background(), Actor{ID: testTeacherID, Role: models.RoleTeacher}, "notif-1")
	assertAppError(t, err, appErrors.ErrNotFound)
}

func TestMarkAllRead(t *testing.T) {
	inbox := &mockNotificationInbox{allRead: 4}
	svc := NewNotificationService(inbox, nil)

	affected, err := svc.MarkAllRead(context.Background(), Actor{ID: testParentID, Role: models.RoleParent})
	require.NoError(t, err)
	assert.EqualValues(t, 4, affected)
}
