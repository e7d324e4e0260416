package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"pcapi/internal/deposit"
	"pcapi/internal/kafka"
	"pcapi/internal/logger"
	"pcapi/internal/models"
	"pcapi/internal/utils"
)

type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User, columns ...string) error
	CreateFraudCheck(ctx context.Context, c *models.BeneficiaryFraudCheck) error
	UpdateFraudCheck(ctx context.Context, c *models.BeneficiaryFraudCheck) error
	GetFraudCheckByThirdPartyID(ctx context.Context, thirdPartyID string) (*models.BeneficiaryFraudCheck, error)
	ListFraudChecks(ctx context.Context, userID int64) ([]*models.BeneficiaryFraudCheck, error)
	FindUsersByIdentity(ctx context.Context, excludeUserID int64, firstName, lastName string, birth time.Time) ([]*models.User, error)
	FindUsersByIDPiece(ctx context.Context, excludeUserID int64, idPieceNumber string) ([]*models.User, error)
}

var _ Store = (*DB)(nil)

// Deposits grants the pass once a subscription is complete.
type Deposits interface {
	GrantDeposit(ctx context.Context, userID int64, depositType models.DepositType, source string, now time.Time) (*models.Deposit, error)
	DepositOfType(ctx context.Context, userID int64, depositType models.DepositType) (*models.Deposit, error)
}

type Notifier interface {
	AccountActivated(ctx context.Context, user *models.User, deposit *models.Deposit) error
}

type Options struct {
	MaxIdentityAttempts int
	IdentityMaintenance bool
}

type Service struct {
	Store     Store
	Deposits  Deposits
	Publisher kafka.Publisher
	Notifier  Notifier
	Logger    *logger.Logger
	Options   Options
	Now       func() time.Time
}

func NewService(store Store, deposits Deposits, publisher kafka.Publisher, notifier Notifier, log *logger.Logger, opts Options) *Service {
	if opts.MaxIdentityAttempts <= 0 {
		opts.MaxIdentityAttempts = 3
	}
	return &Service{
		Store:     store,
		Deposits:  deposits,
		Publisher: publisher,
		Notifier:  notifier,
		Logger:    log,
		Options:   opts,
		Now:       time.Now,
	}
}

func (s *Service) loadUser(ctx context.Context, store Store, userID int64) (*models.User, error) {
	user, err := store.GetUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	return user, nil
}

func firstIdentityCheck(checks []*models.BeneficiaryFraudCheck) *time.Time {
	for _, c := range checks {
		if c.Type.IsIdentityCheck() {
			at := c.DateCreated
			return &at
		}
	}
	return nil
}

func (s *Service) eligibility(user *models.User, checks []*models.BeneficiaryFraudCheck, now time.Time) (models.EligibilityType, error) {
	birth := user.BirthDate()
	if birth == nil {
		return "", ErrNotEligible
	}
	e, ok := Eligibility(*birth, now, firstIdentityCheck(checks))
	if !ok {
		return "", ErrNotEligible
	}
	return e, nil
}

// RecordFraudCheck stores a check started by the user. Declarative checks
// are OK at once, identity checks wait for their provider.
func (s *Service) RecordFraudCheck(ctx context.Context, userID int64, checkType models.FraudCheckType, thirdPartyID string, content *models.IdentityContent) (*models.BeneficiaryFraudCheck, error) {
	now := s.Now()
	user, err := s.loadUser(ctx, s.Store, userID)
	if err != nil {
		return nil, err
	}
	checks, err := s.Store.ListFraudChecks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fraud checks: %w", err)
	}
	eligibility, err := s.eligibility(user, checks, now)
	if err != nil {
		return nil, err
	}

	check := &models.BeneficiaryFraudCheck{
		UserID:          userID,
		Type:            checkType,
		ThirdPartyID:    thirdPartyID,
		Content:         content,
		EligibilityType: eligibility,
		DateCreated:     now,
		UpdatedAt:       now,
	}
	if check.ThirdPartyID == "" {
		check.ThirdPartyID = strconv.FormatInt(userID, 10)
	}

	switch checkType {
	case models.FraudCheckUbble, models.FraudCheckDMS, models.FraudCheckEduconnect:
		switch identityStep(s.progress(user, eligibility, checks)) {
		case StepBlocked:
			return nil, ErrTooManyAttempts
		case StepPendingReview:
			return nil, ErrCheckInProgress
		case StepMaintenance:
			return nil, ErrIdentityMaintenance
		}
		check.Status = models.FraudCheckPending
		if checkType == models.FraudCheckUbble {
			check.Status = models.FraudCheckStarted
		}
	case models.FraudCheckHonorStatement, models.FraudCheckProfileCompletion, models.FraudCheckPhoneValidation:
		check.Status = models.FraudCheckOK
	case models.FraudCheckUserProfiling, models.FraudCheckInternalReview:
		check.Status = models.FraudCheckPending
	default:
		return nil, ErrUnsupportedCheckType
	}

	err = s.Store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.CreateFraudCheck(ctx, check); err != nil {
			return fmt.Errorf("failed to create fraud check: %w", err)
		}
		if checkType == models.FraudCheckPhoneValidation && !user.IsPhoneValidated {
			user.IsPhoneValidated = true
			return tx.UpdateUser(ctx, user, "is_phone_validated")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("SUBSCRIPTION", fmt.Sprintf("User %d: %s check %d is %s", userID, checkType, check.ID, check.Status))
	if check.Status == models.FraudCheckOK {
		s.tryActivate(ctx, userID)
	}
	return check, nil
}

// ProcessIdentityResult applies the result of an identity provider to the
// check it was started with.
func (s *Service) ProcessIdentityResult(ctx context.Context, thirdPartyID string, result *models.IdentityContent) (*models.BeneficiaryFraudCheck, error) {
	now := s.Now()
	var check *models.BeneficiaryFraudCheck
	err := s.Store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		check, err = tx.GetFraudCheckByThirdPartyID(ctx, thirdPartyID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrFraudCheckNotFound
		}
		if err != nil {
			return err
		}
		if check.Status != models.FraudCheckStarted && check.Status != models.FraudCheckPending {
			return ErrAlreadyProcessed
		}

		user, err := s.loadUser(ctx, tx, check.UserID)
		if err != nil {
			return err
		}
		checks, err := tx.ListFraudChecks(ctx, user.ID)
		if err != nil {
			return err
		}

		status, reasons := EvaluateIdentity(result, check.EligibilityType, now, firstIdentityCheck(checks))
		if status == models.FraudCheckOK {
			dup, err := s.duplicates(ctx, tx, user.ID, result)
			if err != nil {
				return err
			}
			if len(dup) > 0 {
				status, reasons = models.FraudCheckSuspicious, dup
			}
		}

		check.Status = status
		check.ReasonCodes = reasons
		check.Content = result
		check.UpdatedAt = now
		if err := tx.UpdateFraudCheck(ctx, check); err != nil {
			return fmt.Errorf("failed to update fraud check %d: %w", check.ID, err)
		}
		if status != models.FraudCheckOK {
			return nil
		}

		user.ValidatedBirthDate = result.BirthDate
		user.IDPieceNumber = result.IDDocumentNumber
		if user.FirstName == "" {
			user.FirstName = result.FirstName
		}
		if user.LastName == "" {
			user.LastName = result.LastName
		}
		return tx.UpdateUser(ctx, user, "validated_birth_date", "id_piece_number", "first_name", "last_name")
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("SUBSCRIPTION", fmt.Sprintf("Identity check %d of user %d is %s %v", check.ID, check.UserID, check.Status, check.ReasonCodes))
	if check.Status == models.FraudCheckOK {
		s.tryActivate(ctx, check.UserID)
	}
	return check, nil
}

// duplicates looks for a beneficiary with the same identity.
func (s *Service) duplicates(ctx context.Context, store Store, userID int64, content *models.IdentityContent) ([]models.FraudReasonCode, error) {
	var reasons []models.FraudReasonCode
	if content.BirthDate != nil {
		users, err := store.FindUsersByIdentity(ctx, userID, content.FirstName, content.LastName, *content.BirthDate)
		if err != nil {
			return nil, fmt.Errorf("failed to look for duplicate users: %w", err)
		}
		if anyBeneficiary(users) {
			reasons = append(reasons, models.ReasonDuplicateUser)
		}
	}
	if content.IDDocumentNumber != "" {
		users, err := store.FindUsersByIDPiece(ctx, userID, content.IDDocumentNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to look for duplicate id pieces: %w", err)
		}
		if anyBeneficiary(users) {
			reasons = append(reasons, models.ReasonDuplicateIDPiece)
		}
	}
	return reasons, nil
}

func anyBeneficiary(users []*models.User) bool {
	for _, u := range users {
		if u.IsBeneficiary() {
			return true
		}
	}
	return false
}

func (s *Service) progress(user *models.User, eligibility models.EligibilityType, checks []*models.BeneficiaryFraudCheck) Progress {
	return Progress{
		User:        user,
		Eligibility: eligibility,
		Checks:      checks,
		MaxAttempts: s.Options.MaxIdentityAttempts,
		Maintenance: s.Options.IdentityMaintenance,
	}
}

// NextStep returns the next subscription step of a user, StepNone when
// every step is done.
func (s *Service) NextStep(ctx context.Context, userID int64) (Step, error) {
	user, err := s.loadUser(ctx, s.Store, userID)
	if err != nil {
		return StepNone, err
	}
	checks, err := s.Store.ListFraudChecks(ctx, userID)
	if err != nil {
		return StepNone, fmt.Errorf("failed to list fraud checks: %w", err)
	}
	eligibility, err := s.eligibility(user, checks, s.Now())
	if err != nil {
		return StepNone, err
	}
	return NextStep(s.progress(user, eligibility, checks)), nil
}

// ActivateIfComplete grants the deposit and the beneficiary role once every
// subscription step is OK.
func (s *Service) ActivateIfComplete(ctx context.Context, userID int64) (*models.Deposit, error) {
	now := s.Now()
	user, err := s.loadUser(ctx, s.Store, userID)
	if err != nil {
		return nil, err
	}
	checks, err := s.Store.ListFraudChecks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fraud checks: %w", err)
	}
	eligibility, err := s.eligibility(user, checks, now)
	if err != nil {
		return nil, err
	}
	if NextStep(s.progress(user, eligibility, checks)) != StepNone {
		return nil, ErrIncomplete
	}

	depositType, role := DepositFor(eligibility)
	if user.HasRole(role) {
		return nil, ErrAlreadyBeneficiary
	}

	granted, err := s.Deposits.GrantDeposit(ctx, userID, depositType, fmt.Sprintf("subscription %s", eligibility), now)
	if errors.Is(err, deposit.ErrAlreadyGranted) {
		// an earlier activation stopped after the grant
		s.Logger.Warn("SUBSCRIPTION", fmt.Sprintf("User %d already holds %s, resuming activation", userID, depositType))
		granted, err = s.Deposits.DepositOfType(ctx, userID, depositType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to grant deposit: %w", err)
	}

	if role == models.RoleBeneficiary {
		user.RemoveRole(models.RoleUnderageBeneficiary)
	}
	user.AddRole(role)
	if err := s.Store.UpdateUser(ctx, user, "roles"); err != nil {
		return nil, fmt.Errorf("failed to update roles: %w", err)
	}

	event := kafka.UserActivatedEvent{
		UserID:      userID,
		DepositID:   granted.ID,
		DepositType: string(granted.Type),
		Amount:      granted.Amount,
	}
	if err := s.Publisher.Publish(ctx, kafka.TopicUserActivated, strconv.FormatInt(userID, 10), event); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish activation of user %d: %v", userID, err))
	}
	if err := s.Notifier.AccountActivated(ctx, user, granted); err != nil {
		s.Logger.Error("SUBSCRIPTION", fmt.Sprintf("Failed to send activation email to user %d: %v", userID, err))
	}

	s.Logger.Info("SUBSCRIPTION", fmt.Sprintf("User %d activated with %s (%d cents, age %d)", userID, depositType, granted.Amount, utils.AgeAt(*user.BirthDate(), now)))
	return granted, nil
}

func (s *Service) tryActivate(ctx context.Context, userID int64) {
	_, err := s.ActivateIfComplete(ctx, userID)
	switch {
	case err == nil, errors.Is(err, ErrIncomplete), errors.Is(err, ErrAlreadyBeneficiary):
	default:
		s.Logger.Error("SUBSCRIPTION", fmt.Sprintf("Failed to activate user %d: %v", userID, err))
	}
}
