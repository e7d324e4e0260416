package subscription

import (
	"errors"
	"time"

	"pcapi/internal/models"
	"pcapi/internal/utils"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrNotEligible          = errors.New("user is not eligible to the pass")
	ErrFraudCheckNotFound   = errors.New("fraud check not found")
	ErrAlreadyProcessed     = errors.New("fraud check already has a final result")
	ErrTooManyAttempts      = errors.New("too many identity check attempts")
	ErrCheckInProgress      = errors.New("an identity check is already in progress")
	ErrIdentityMaintenance  = errors.New("identity checks are under maintenance")
	ErrIncomplete           = errors.New("subscription is not complete")
	ErrAlreadyBeneficiary   = errors.New("user is already a beneficiary")
	ErrUnsupportedCheckType = errors.New("unsupported fraud check type")
)

const (
	underageMinAge = 15
	underageMaxAge = 17
	age18          = 18
)

// Step is the next action a user must take to get the pass.
type Step string

const (
	StepEmailValidation   Step = "EMAIL_VALIDATION"
	StepPhoneValidation   Step = "PHONE_VALIDATION"
	StepProfileCompletion Step = "PROFILE_COMPLETION"
	StepIdentityCheck     Step = "IDENTITY_CHECK"
	StepHonorStatement    Step = "HONOR_STATEMENT"
	StepPendingReview     Step = "PENDING_REVIEW"
	StepMaintenance       Step = "MAINTENANCE"
	StepBlocked           Step = "BLOCKED"
	StepNone              Step = ""
)

// EligibilityAt returns the pass a person born on birth may ask for at now.
func EligibilityAt(birth, now time.Time) (models.EligibilityType, bool) {
	age := utils.AgeAt(birth, now)
	switch {
	case age >= underageMinAge && age <= underageMaxAge:
		return models.EligibilityUnderage, true
	case age == age18:
		return models.EligibilityAge18, true
	}
	return "", false
}

// Eligibility is EligibilityAt, except that a 19 year old who started an
// identity check at 18 stays eligible to AGE18.
func Eligibility(birth, now time.Time, firstIdentityCheck *time.Time) (models.EligibilityType, bool) {
	if e, ok := EligibilityAt(birth, now); ok {
		return e, true
	}
	if firstIdentityCheck != nil && utils.AgeAt(birth, now) == age18+1 && utils.AgeAt(birth, *firstIdentityCheck) == age18 {
		return models.EligibilityAge18, true
	}
	return "", false
}

// DepositFor returns the deposit and role granted for an eligibility.
func DepositFor(e models.EligibilityType) (models.DepositType, models.UserRole) {
	if e == models.EligibilityUnderage {
		return models.DepositGrant15_17, models.RoleUnderageBeneficiary
	}
	return models.DepositGrant18, models.RoleBeneficiary
}

// EvaluateIdentity checks the document read by an identity provider against
// the eligibility the check was started for. Duplicates are checked by the
// service since they need the database.
func EvaluateIdentity(content *models.IdentityContent, eligibility models.EligibilityType, now time.Time, firstIdentityCheck *time.Time) (models.FraudCheckStatus, []models.FraudReasonCode) {
	var reasons []models.FraudReasonCode

	if !content.Processable {
		return models.FraudCheckKO, []models.FraudReasonCode{models.ReasonIDCheckUnprocessable}
	}
	if !content.DocumentSupported {
		reasons = append(reasons, models.ReasonIDCheckNotSupported)
	}
	if content.DocumentExpiry != nil && content.DocumentExpiry.Before(utils.StartOfDay(now)) {
		reasons = append(reasons, models.ReasonIDCheckExpired)
	}

	if content.BirthDate == nil {
		reasons = append(reasons, models.ReasonMissingBirthDate)
	} else {
		age := utils.AgeAt(*content.BirthDate, now)
		found, ok := Eligibility(*content.BirthDate, now, firstIdentityCheck)
		switch {
		case ok && found == eligibility:
		case age < underageMinAge:
			reasons = append(reasons, models.ReasonAgeTooYoung)
		case age > age18 && !ok:
			reasons = append(reasons, models.ReasonAgeTooOld)
		default:
			reasons = append(reasons, models.ReasonNotEligible)
		}
	}

	if len(reasons) > 0 {
		return models.FraudCheckKO, reasons
	}
	return models.FraudCheckOK, nil
}

// retryable reason codes let the user start a new identity check.
func retryable(reasons []models.FraudReasonCode) bool {
	for _, r := range reasons {
		switch r {
		case models.ReasonIDCheckExpired, models.ReasonIDCheckNotSupported, models.ReasonIDCheckUnprocessable:
		default:
			return false
		}
	}
	return true
}

func hasStatus(checks []*models.BeneficiaryFraudCheck, t models.FraudCheckType, status models.FraudCheckStatus) bool {
	for _, c := range checks {
		if c.Type == t && c.Status == status {
			return true
		}
	}
	return false
}

// Progress is what NextStep needs to know about a user.
type Progress struct {
	User        *models.User
	Eligibility models.EligibilityType
	Checks      []*models.BeneficiaryFraudCheck
	MaxAttempts int
	Maintenance bool
}

// NextStep walks the subscription steps in order and returns the first one
// not done yet, or StepNone when the user can be activated.
func NextStep(p Progress) Step {
	if !p.User.IsEmailValidated {
		return StepEmailValidation
	}
	if p.Eligibility == models.EligibilityAge18 && !p.User.IsPhoneValidated {
		return StepPhoneValidation
	}
	if !hasStatus(p.Checks, models.FraudCheckProfileCompletion, models.FraudCheckOK) {
		return StepProfileCompletion
	}
	if step := identityStep(p); step != StepNone {
		return step
	}
	if !hasStatus(p.Checks, models.FraudCheckHonorStatement, models.FraudCheckOK) {
		return StepHonorStatement
	}
	return StepNone
}

func identityStep(p Progress) Step {
	attempts := 0
	var last *models.BeneficiaryFraudCheck
	for _, c := range p.Checks {
		if !c.Type.IsIdentityCheck() || c.EligibilityType != p.Eligibility {
			continue
		}
		if c.Status == models.FraudCheckOK {
			return StepNone
		}
		if c.Status == models.FraudCheckCanceled {
			continue
		}
		attempts++
		if last == nil || c.DateCreated.After(last.DateCreated) {
			last = c
		}
	}

	if last != nil {
		switch last.Status {
		case models.FraudCheckStarted, models.FraudCheckPending, models.FraudCheckSuspicious:
			return StepPendingReview
		case models.FraudCheckKO, models.FraudCheckError:
			if !retryable(last.ReasonCodes) || attempts >= p.MaxAttempts {
				return StepBlocked
			}
		}
	}
	if p.Maintenance {
		return StepMaintenance
	}
	return StepIdentityCheck
}
