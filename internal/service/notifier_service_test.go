package service

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aprendesoft/colegio-api/internal/models"
)

func notifierFixture() (*AbsenceNotifier, *mockParentLinks, *mockNotificationWriter) {
	parents := &mockParentLinks{
		parents: map[string]*models.User{
			testStudentID: {ID: testParentID, FirstName: "Marta", LastName: "García", Email: "marta@example.com"},
		},
	}
	writer := &mockNotificationWriter{}
	return NewAbsenceNotifier(parents, writer, defaultAttendanceConfig(), nil, zap.NewNop()), parents, writer
}

func notifierSubjects() (*models.User, *models.Course) {
	student := &models.User{ID: testStudentID, FirstName: "Ana", LastName: "García", Email: "ana@example.com"}
	course := &models.Course{ID: testCourseID, Name: "Matemáticas", Grade: models.GradePrimero, Section: "A"}
	return student, course
}

func TestEffectivePolicyDefaults(t *testing.T) {
	notifier, _, _ := notifierFixture()

	policy := notifier.EffectivePolicy(testCourseID, nil)
	assert.Equal(t, 3, policy.NoticeThreshold)
	assert.Equal(t, 5, policy.AlertThreshold)
	assert.Equal(t, 75.0, policy.MinimumPercent)
	assert.True(t, policy.NotifyParents)
	assert.False(t, policy.NotifyEveryAbsence)

	stored := &models.AttendancePolicy{CourseID: testCourseID, NoticeThreshold: 2, AlertThreshold: 4}
	assert.Equal(t, stored, notifier.EffectivePolicy(testCourseID, stored))
}

func TestAbsenceRecordedNotifyParentsOff(t *testing.T) {
	notifier, _, writer := notifierFixture()
	student, course := notifierSubjects()
	policy := &models.AttendancePolicy{NoticeThreshold: 3, AlertThreshold: 5, NotifyParents: false}

	email, err := notifier.AbsenceRecorded(context.Background(), nil, student, course, policy, 3)
	require.NoError(t, err)
	assert.Nil(t, email)
	assert.Empty(t, writer.created)
}

func TestAbsenceRecordedNoLinkedParent(t *testing.T) {
	notifier, parents, writer := notifierFixture()
	parents.parents = nil
	student, course := notifierSubjects()
	policy := notifier.EffectivePolicy(testCourseID, nil)

	email, err := notifier.AbsenceRecorded(context.Background(), nil, student, course, policy, 3)
	require.NoError(t, err)
	assert.Nil(t, email)
	assert.Empty(t, writer.created)
}

func TestAbsenceRecordedMentionsStudentAndCourse(t *testing.T) {
	notifier, _, writer := notifierFixture()
	student, course := notifierSubjects()
	policy := notifier.EffectivePolicy(testCourseID, nil)

	email, err := notifier.AbsenceRecorded(context.Background(), nil, student, course, policy, 5)
	require.NoError(t, err)
	require.NotNil(t, email)
	assert.Equal(t, "marta@example.com", email.ToAddress)
	assert.Equal(t, "Alerta de inasistencias", email.Subject)
	assert.Contains(t, email.Body, "Ana García")
	assert.Contains(t, email.Body, course.Label())

	require.Len(t, writer.created, 1)
	require.NotNil(t, writer.created[0].StudentID)
	assert.Equal(t, testStudentID, *writer.created[0].StudentID)
}

func TestAbsenceRecordedParentWithoutEmail(t *testing.T) {
	notifier, parents, writer := notifierFixture()
	parents.parents[testStudentID].Email = ""
	student, course := notifierSubjects()
	policy := notifier.EffectivePolicy(testCourseID, nil)

	email, err := notifier.AbsenceRecorded(context.Background(), nil, student, course, policy, 3)
	require.NoError(t, err)
	assert.Nil(t, email, "nothing to relay without an address")
	require.Len(t, writer.created, 1, "the inbox notification still lands")
}

func TestAbsenceRecordedCountsAlerts(t *testing.T) {
	parents := &mockParentLinks{
		parents: map[string]*models.User{
			testStudentID: {ID: testParentID, FirstName: "Marta", LastName: "García", Email: "marta@example.com"},
		},
	}
	metrics := NewMetricsService()
	notifier := NewAbsenceNotifier(parents, &mockNotificationWriter{}, defaultAttendanceConfig(), metrics, zap.NewNop())
	student, course := notifierSubjects()
	policy := notifier.EffectivePolicy(testCourseID, nil)

	_, err := notifier.AbsenceRecorded(context.Background(), nil, student, course, policy, 5)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.alertsTotal.WithLabelValues("urgent")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.alertsTotal.WithLabelValues("medium")))
}
