package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"pcapi/internal/database/dbtest"
	"pcapi/internal/deposit"
	"pcapi/internal/kafka"
	"pcapi/internal/kafka/kafkatest"
	"pcapi/internal/logger"
	"pcapi/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) AccountActivated(ctx context.Context, user *models.User, d *models.Deposit) error {
	args := m.Called(user.ID, d.Amount)
	return args.Error(0)
}

type fixture struct {
	db        *bun.DB
	svc       *Service
	published *kafkatest.Recorder
	notifier  *MockNotifier
	user      *models.User
	birth     time.Time
}

func newFixture(t *testing.T, birth time.Time) *fixture {
	t.Helper()
	db := dbtest.New(t)

	user := &models.User{Email: "jeanne@example.com", DateOfBirth: &birth, IsEmailValidated: true, CreatedAt: testNow}
	dbtest.Insert(t, db, user)

	published := &kafkatest.Recorder{}
	notifier := &MockNotifier{}
	notifier.On("AccountActivated", mock.Anything, mock.Anything).Return(nil).Maybe()

	deposits := deposit.NewService(&deposit.DB{Bun: db}, logger.Nop())
	svc := NewService(&DB{Bun: db}, deposits, published, notifier, logger.Nop(), Options{MaxIdentityAttempts: 3})
	svc.Now = func() time.Time { return testNow }

	return &fixture{db: db, svc: svc, published: published, notifier: notifier, user: user, birth: birth}
}

func (f *fixture) reload(t *testing.T) *models.User {
	t.Helper()
	u, err := f.svc.Store.GetUser(context.Background(), f.user.ID)
	require.NoError(t, err)
	return u
}

func (f *fixture) identity() *models.IdentityContent {
	birth := f.birth
	expiry := testNow.AddDate(5, 0, 0)
	return &models.IdentityContent{
		FirstName:         "Jeanne",
		LastName:          "Martin",
		BirthDate:         &birth,
		IDDocumentNumber:  "123456789AB",
		DocumentExpiry:    &expiry,
		DocumentSupported: true,
		Processable:       true,
	}
}

func TestFullAge18Subscription(t *testing.T) {
	f := newFixture(t, born(2006, 1, 15))
	ctx := context.Background()

	step, err := f.svc.NextStep(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, StepPhoneValidation, step)

	_, err = f.svc.RecordFraudCheck(ctx, f.user.ID, models.FraudCheckPhoneValidation, "", nil)
	require.NoError(t, err)
	assert.True(t, f.reload(t).IsPhoneValidated)

	_, err = f.svc.RecordFraudCheck(ctx, f.user.ID, models.FraudCheckProfileCompletion, "", nil)
	require.NoError(t, err)

	started, err := f.svc.RecordFraudCheck(ctx, f.user.ID, models.FraudCheckUbble, "ubble-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.FraudCheckStarted, started.Status)
	assert.Equal(t, models.EligibilityAge18, started.EligibilityType)

	step, err = f.svc.NextStep(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, StepPendingReview, step)

	_, err = f.svc.RecordFraudCheck(ctx, f.user.ID, models.FraudCheckUbble, "ubble-2", nil)
	assert.ErrorIs(t, err, ErrCheckInProgress)

	processed, err := f.svc.ProcessIdentityResult(ctx, "ubble-1", f.identity())
	require.NoError(t, err)
	assert.Equal(t, models.FraudCheckOK, processed.Status)

	user := f.reload(t)
	require.NotNil(t, user.ValidatedBirthDate)
	assert.Equal(t, "Jeanne", user.FirstName)
	assert.Equal(t, "123456789AB", user.IDPieceNumber)
	assert.False(t, user.IsBeneficiary(), "honor statement is still missing")

	_, err = f.svc.ProcessIdentityResult(ctx, "ubble-1", f.identity())
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	_, err = f.svc.RecordFraudCheck(ctx, f.user.ID, models.FraudCheckHonorStatement, "", nil)
	require.NoError(t, err)

	user = f.reload(t)
	assert.True(t, user.HasRole(models.RoleBeneficiary))

	var event kafka.UserActivatedEvent
	require.True(t, f.published.Last(kafka.TopicUserActivated, &event))
	assert.Equal(t, f.user.ID, event.UserID)
	assert.Equal(t, deposit.Grant18Amount, event.Amount)
	f.notifier.AssertCalled(t, "AccountActivated", f.user.ID, deposit.Grant18Amount)

	step, err = f.svc.NextStep(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, StepNone, step)

	_, err = f.svc.ActivateIfComplete(ctx, f.user.ID)
	assert.ErrorIs(t, err, ErrAlreadyBeneficiary)
}

// flakyRoles fails the first role updates it sees.
type flakyRoles struct {
	Store
	failures int
}

func (f *flakyRoles) UpdateUser(ctx context.Context, u *models.User, columns ...string) error {
	for _, c := range columns {
		if c == "roles" && f.failures > 0 {
			f.failures--
			return errors.New("connection reset")
		}
	}
	return f.Store.UpdateUser(ctx, u, columns...)
}

func TestActivationResumesAfterRoleUpdateFailure(t *testing.T) {
	f := newFixture(t, born(2006, 1, 15))
	ctx := context.Background()

	for _, step := range []models.FraudCheckType{models.FraudCheckPhoneValidation, models.FraudCheckProfileCompletion} {
		_, err := f.svc.RecordFraudCheck(ctx, f.user.ID, step, "", nil)
		require.NoError(t, err)
	}
	_, err := f.svc.RecordFraudCheck(ctx, f.user.ID, models.FraudCheckUbble, "ubble-1", nil)
	require.NoError(t, err)
	_, err = f.svc.ProcessIdentityResult(ctx, "ubble-1", f.identity())
	require.NoError(t, err)

	f.svc.Store = &flakyRoles{Store: f.svc.Store, failures: 1}
	_, err = f.svc.RecordFraudCheck(ctx, f.user.ID, models.FraudCheckHonorStatement, "", nil)
	require.NoError(t, err)
	assert.False(t, f.reload(t).IsBeneficiary(), "role update failed")

	granted, err := f.svc.ActivateIfComplete(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DepositGrant18, granted.Type)
	assert.True(t, f.reload(t).HasRole(models.RoleBeneficiary))

	var deposits []models.Deposit
	require.NoError(t, f.db.NewSelect().Model(&deposits).Where("user_id = ?", f.user.ID).Scan(ctx))
	require.Len(t, deposits, 1)
	assert.Equal(t, granted.ID, deposits[0].ID)
}

func TestUnderageActivationSkipsPhone(t *testing.T) {
	f := newFixture(t, born(2008, 1, 15))
	ctx := context.Background()

	_, err := f.svc.RecordFraudCheck(ctx, f.user.ID, models.FraudCheckProfileCompletion, "", nil)
	require.NoError(t, err)
	_, err = f.svc.RecordFraudCheck(ctx, f.user.ID, models.FraudCheckEduconnect, "educonnect-1", nil)
	require.NoError(t, err)
	_, err = f.svc.ProcessIdentityResult(ctx, "educonnect-1", f.identity())
	require.NoError(t, err)

	_, err = f.svc.ActivateIfComplete(ctx, f.user.ID)
	assert.ErrorIs(t, err, ErrIncomplete)

	_, err = f.svc.RecordFraudCheck(ctx, f.user.ID, models.FraudCheckHonorStatement, "", nil)
	require.NoError(t, err)

	user := f.reload(t)
	assert.True(t, user.HasRole(models.RoleUnderageBeneficiary))
	var event kafka.UserActivatedEvent
	require.True(t, f.published.Last(kafka.TopicUserActivated, &event))
	assert.Equal(t, string(models.DepositGrant15_17), event.DepositType)
	assert.Equal(t, int64(3000), event.Amount)
}

func TestDuplicateBeneficiaryIsSuspicious(t *testing.T) {
	f := newFixture(t, born(2006, 1, 15))
	ctx := context.Background()

	existing := &models.User{
		Email:              "autre@example.com",
		FirstName:          "JEANNE",
		LastName:           "martin",
		ValidatedBirthDate: &f.birth,
		Roles:              []models.UserRole{models.RoleBeneficiary},
		CreatedAt:          testNow,
	}
	dbtest.Insert(t, f.db, existing)

	_, err := f.svc.RecordFraudCheck(ctx, f.user.ID, models.FraudCheckDMS, "dms-1", nil)
	require.NoError(t, err)

	check, err := f.svc.ProcessIdentityResult(ctx, "dms-1", f.identity())
	require.NoError(t, err)
	assert.Equal(t, models.FraudCheckSuspicious, check.Status)
	assert.Equal(t, []models.FraudReasonCode{models.ReasonDuplicateUser}, check.ReasonCodes)
	assert.Nil(t, f.reload(t).ValidatedBirthDate)
}

func TestIdentityAttemptsAreCapped(t *testing.T) {
	f := newFixture(t, born(2006, 1, 15))
	ctx := context.Background()
	bad := &models.IdentityContent{Processable: false}

	for i, id := range []string{"u1", "u2", "u3"} {
		_, err := f.svc.RecordFraudCheck(ctx, f.user.ID, models.FraudCheckUbble, id, nil)
		require.NoError(t, err, "attempt %d", i+1)
		check, err := f.svc.ProcessIdentityResult(ctx, id, bad)
		require.NoError(t, err)
		assert.Equal(t, models.FraudCheckKO, check.Status)
	}

	_, err := f.svc.RecordFraudCheck(ctx, f.user.ID, models.FraudCheckUbble, "u4", nil)
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestSubscriptionErrors(t *testing.T) {
	f := newFixture(t, born(2000, 1, 15))
	ctx := context.Background()

	_, err := f.svc.RecordFraudCheck(ctx, f.user.ID, models.FraudCheckUbble, "x", nil)
	assert.ErrorIs(t, err, ErrNotEligible)

	_, err = f.svc.NextStep(ctx, 404)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = f.svc.ProcessIdentityResult(ctx, "unknown", f.identity())
	assert.ErrorIs(t, err, ErrFraudCheckNotFound)
}
