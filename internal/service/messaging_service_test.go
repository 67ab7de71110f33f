package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aprendesoft/colegio-api/internal/models"
	appErrors "github.com/aprendesoft/colegio-api/pkg/errors"
)

type messagingFixture struct {
	svc           *MessagingService
	notifications *mockNotificationWriter
	users         *mockUserRepo
	parents       *mockParentLinks
	relay         *mockRelay
}

func newMessagingFixture() *messagingFixture {
	f := &messagingFixture{
		notifications: &mockNotificationWriter{},
		users: &mockUserRepo{users: map[string]*models.User{
			"ana@example.com": {ID: testStudentID, Email: "ana@example.com",
				FirstName: "Ana", LastName: "García", Role: models.RoleStudent, Active: true},
			"pedro@example.com": {ID: testTeacherID, Email: "pedro@example.com",
				FirstName: "Pedro", LastName: "Ruiz", Role: models.RoleTeacher, Active: true},
		}},
		parents: &mockParentLinks{
			parents: map[string]*models.User{
				testStudentID: {ID: testParentID, FirstName: "Marta", LastName: "García", Email: "marta@example.com", Role: models.RoleParent},
			},
		},
		relay: &mockRelay{},
	}
	f.svc = NewMessagingService(f.notifications, f.users, f.parents, f.relay, nil, zap.NewNop())
	return f
}

func TestSendCommunicationToUser(t *testing.T) {
	f := newMessagingFixture()
	recipient := testTeacherID

	created, err := f.svc.SendCommunication(context.Background(), Actor{ID: testAdminID, Role: models.RoleAdmin},
		SendCommunicationRequest{
			RecipientID: &recipient,
			Title:       "Reunión de docentes",
			Body:        "El viernes a las 10:00.",
		})
	require.NoError(t, err)
	assert.Equal(t, models.NotificationCommunication, created.Category)
	assert.Equal(t, models.PriorityMedium, created.Priority)
	assert.Equal(t, testTeacherID, created.UserID)
	assert.Nil(t, created.StudentID)

	require.Len(t, f.relay.enqueued, 1)
	assert.Equal(t, "pedro@example.com", f.relay.enqueued[0].ToAddress)
}

func TestSendCommunicationToStudentsParent(t *testing.T) {
	f := newMessagingFixture()
	student := testStudentID

	created, err := f.svc.SendCommunication(context.Background(), teacherActor(),
		SendCommunicationRequest{
			StudentID: &student,
			Title:     "Entrega de boletines",
			Body:      "Se entregan el lunes.",
			Priority:  "high",
		})
	require.NoError(t, err)
	assert.Equal(t, testParentID, created.UserID)
	assert.Equal(t, models.PriorityHigh, created.Priority)
	require.NotNil(t, created.StudentID)
	assert.Equal(t, testStudentID, *created.StudentID)
}

func TestSendCommunicationExactlyOneTarget(t *testing.T) {
	f := newMessagingFixture()
	recipient := testTeacherID
	student := testStudentID

	_, err := f.svc.SendCommunication(context.Background(), teacherActor(),
		SendCommunicationRequest{Title: "Aviso", Body: "Sin destino."})
	assertAppError(t, err, appErrors.ErrValidation)

	_, err = f.svc.SendCommunication(context.Background(), teacherActor(),
		SendCommunicationRequest{
			RecipientID: &recipient, StudentID: &student,
			Title: "Aviso", Body: "Doble destino.",
		})
	assertAppError(t, err, appErrors.ErrValidation)
}

func TestSendCommunicationRequiresStaff(t *testing.T) {
	f := newMessagingFixture()
	recipient := testTeacherID

	_, err := f.svc.SendCommunication(context.Background(), Actor{ID: testStudentID, Role: models.RoleStudent},
		SendCommunicationRequest{RecipientID: &recipient, Title: "Aviso", Body: "Hola."})
	assertAppError(t, err, appErrors.ErrForbidden)
}

func TestSendCitation(t *testing.T) {
	f := newMessagingFixture()
	location := "Rectoría"

	created, err := f.svc.SendCitation(context.Background(), teacherActor(),
		SendCitationRequest{
			StudentID:   testStudentID,
			Motive:      "Bajo rendimiento en asistencia",
			MeetingDate: "2026-03-20",
			MeetingTime: "10:00",
			Location:    &location,
		})
	require.NoError(t, err)
	assert.Equal(t, models.NotificationCitation, created.Category)
	assert.Equal(t, models.PriorityHigh, created.Priority)
	assert.Equal(t, testParentID, created.UserID)
	require.NotNil(t, created.MeetingDate)
	assert.Contains(t, created.Body, "Bajo rendimiento en asistencia")
	assert.Contains(t, created.Body, "Rectoría")

	require.Len(t, f.relay.enqueued, 1)
	assert.Equal(t, "marta@example.com", f.relay.enqueued[0].ToAddress)
}

func TestSendCitationWithoutLinkedParent(t *testing.T) {
	f := newMessagingFixture()
	f.parents.parents = nil

	_, err := f.svc.SendCitation(context.Background(), teacherActor(),
		SendCitationRequest{
			StudentID:   testStudentID,
			Motive:      "Bajo rendimiento",
			MeetingDate: "2026-03-20",
			MeetingTime: "10:00",
		})
	assertAppError(t, err, appErrors.ErrNotFound)
	assert.Empty(t, f.notifications.created)
}

func TestSendCitationTargetMustBeStudent(t *testing.T) {
	f := newMessagingFixture()

	_, err := f.svc.SendCitation(context.Background(), teacherActor(),
		SendCitationRequest{
			StudentID:   testTeacherID,
			Motive:      "Bajo rendimiento",
			MeetingDate: "2026-03-20",
			MeetingTime: "10:00",
		})
	assertAppError(t, err, appErrors.ErrNotFound)
}
