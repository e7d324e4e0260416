package subscription

import (
	"testing"
	"time"

	"pcapi/internal/models"

	"github.com/stretchr/testify/assert"
)

var testNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func born(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestEligibilityAt(t *testing.T) {
	tests := []struct {
		name  string
		birth time.Time
		want  models.EligibilityType
		ok    bool
	}{
		{"14 years old", born(2010, 1, 1), "", false},
		{"15 years old", born(2009, 6, 10), models.EligibilityUnderage, true},
		{"17 years old", born(2006, 6, 11), models.EligibilityUnderage, true},
		{"18 years old", born(2006, 6, 10), models.EligibilityAge18, true},
		{"19 years old", born(2005, 1, 1), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EligibilityAt(tt.birth, testNow)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNineteenYearOldKeepsAge18WhenCheckStartedAt18(t *testing.T) {
	birth := born(2005, 3, 1)
	startedAt18 := born(2024, 2, 1)
	startedAt19 := born(2024, 3, 2)

	e, ok := Eligibility(birth, testNow, &startedAt18)
	assert.True(t, ok)
	assert.Equal(t, models.EligibilityAge18, e)

	_, ok = Eligibility(birth, testNow, &startedAt19)
	assert.False(t, ok)
	_, ok = Eligibility(birth, testNow, nil)
	assert.False(t, ok)
}

func TestEvaluateIdentity(t *testing.T) {
	adult := born(2006, 1, 15)
	teen := born(2008, 1, 15)
	old := born(2000, 1, 15)
	child := born(2012, 1, 15)
	expired := born(2024, 1, 1)

	valid := func(birth time.Time) *models.IdentityContent {
		return &models.IdentityContent{FirstName: "Jeanne", LastName: "Martin", BirthDate: &birth, DocumentSupported: true, Processable: true}
	}

	tests := []struct {
		name        string
		content     *models.IdentityContent
		eligibility models.EligibilityType
		status      models.FraudCheckStatus
		reasons     []models.FraudReasonCode
	}{
		{"ok", valid(adult), models.EligibilityAge18, models.FraudCheckOK, nil},
		{"too old", valid(old), models.EligibilityAge18, models.FraudCheckKO, []models.FraudReasonCode{models.ReasonAgeTooOld}},
		{"too young", valid(child), models.EligibilityUnderage, models.FraudCheckKO, []models.FraudReasonCode{models.ReasonAgeTooYoung}},
		{"other eligibility", valid(teen), models.EligibilityAge18, models.FraudCheckKO, []models.FraudReasonCode{models.ReasonNotEligible}},
		{
			"expired document",
			func() *models.IdentityContent { c := valid(adult); c.DocumentExpiry = &expired; return c }(),
			models.EligibilityAge18,
			models.FraudCheckKO,
			[]models.FraudReasonCode{models.ReasonIDCheckExpired},
		},
		{
			"unprocessable",
			&models.IdentityContent{Processable: false},
			models.EligibilityAge18,
			models.FraudCheckKO,
			[]models.FraudReasonCode{models.ReasonIDCheckUnprocessable},
		},
		{
			"missing birth date",
			&models.IdentityContent{Processable: true, DocumentSupported: true},
			models.EligibilityAge18,
			models.FraudCheckKO,
			[]models.FraudReasonCode{models.ReasonMissingBirthDate},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, reasons := EvaluateIdentity(tt.content, tt.eligibility, testNow, nil)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.reasons, reasons)
		})
	}
}

func check(t models.FraudCheckType, status models.FraudCheckStatus, reasons ...models.FraudReasonCode) *models.BeneficiaryFraudCheck {
	return &models.BeneficiaryFraudCheck{Type: t, Status: status, ReasonCodes: reasons, EligibilityType: models.EligibilityAge18, DateCreated: testNow}
}

func TestNextStepOrder(t *testing.T) {
	user := &models.User{}
	p := Progress{User: user, Eligibility: models.EligibilityAge18, MaxAttempts: 3}

	assert.Equal(t, StepEmailValidation, NextStep(p))
	user.IsEmailValidated = true
	assert.Equal(t, StepPhoneValidation, NextStep(p))

	underage := p
	underage.Eligibility = models.EligibilityUnderage
	assert.Equal(t, StepProfileCompletion, NextStep(underage), "underage users skip the phone")

	user.IsPhoneValidated = true
	assert.Equal(t, StepProfileCompletion, NextStep(p))
	p.Checks = append(p.Checks, check(models.FraudCheckProfileCompletion, models.FraudCheckOK))
	assert.Equal(t, StepIdentityCheck, NextStep(p))

	p.Maintenance = true
	assert.Equal(t, StepMaintenance, NextStep(p))
	p.Maintenance = false

	p.Checks = append(p.Checks, check(models.FraudCheckUbble, models.FraudCheckStarted))
	assert.Equal(t, StepPendingReview, NextStep(p))
	p.Checks[1].Status = models.FraudCheckOK
	assert.Equal(t, StepHonorStatement, NextStep(p))
	p.Checks = append(p.Checks, check(models.FraudCheckHonorStatement, models.FraudCheckOK))
	assert.Equal(t, StepNone, NextStep(p))
}

func TestIdentityRetries(t *testing.T) {
	user := &models.User{IsEmailValidated: true, IsPhoneValidated: true}
	base := []*models.BeneficiaryFraudCheck{check(models.FraudCheckProfileCompletion, models.FraudCheckOK)}

	t.Run("retryable failure", func(t *testing.T) {
		checks := append(base, check(models.FraudCheckUbble, models.FraudCheckKO, models.ReasonIDCheckExpired))
		assert.Equal(t, StepIdentityCheck, NextStep(Progress{User: user, Eligibility: models.EligibilityAge18, Checks: checks, MaxAttempts: 3}))
	})

	t.Run("attempts exhausted", func(t *testing.T) {
		checks := append([]*models.BeneficiaryFraudCheck{}, base...)
		for i := 0; i < 3; i++ {
			checks = append(checks, check(models.FraudCheckUbble, models.FraudCheckKO, models.ReasonIDCheckUnprocessable))
		}
		assert.Equal(t, StepBlocked, NextStep(Progress{User: user, Eligibility: models.EligibilityAge18, Checks: checks, MaxAttempts: 3}))
	})

	t.Run("final failure", func(t *testing.T) {
		checks := append(base, check(models.FraudCheckUbble, models.FraudCheckKO, models.ReasonAgeTooOld))
		assert.Equal(t, StepBlocked, NextStep(Progress{User: user, Eligibility: models.EligibilityAge18, Checks: checks, MaxAttempts: 3}))
	})

	t.Run("checks of another eligibility are ignored", func(t *testing.T) {
		old := check(models.FraudCheckEduconnect, models.FraudCheckKO, models.ReasonAgeTooOld)
		old.EligibilityType = models.EligibilityUnderage
		checks := append(base, old)
		assert.Equal(t, StepIdentityCheck, NextStep(Progress{User: user, Eligibility: models.EligibilityAge18, Checks: checks, MaxAttempts: 3}))
	})
}
