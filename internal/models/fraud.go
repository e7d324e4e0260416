package models

import (
	"time"

	"github.com/uptrace/bun"
)

type FraudCheckType string

const (
	FraudCheckUbble             FraudCheckType = "UBBLE"
	FraudCheckDMS               FraudCheckType = "DMS"
	FraudCheckEduconnect        FraudCheckType = "EDUCONNECT"
	FraudCheckHonorStatement    FraudCheckType = "HONOR_STATEMENT"
	FraudCheckPhoneValidation   FraudCheckType = "PHONE_VALIDATION"
	FraudCheckProfileCompletion FraudCheckType = "PROFILE_COMPLETION"
	FraudCheckUserProfiling     FraudCheckType = "USER_PROFILING"
	FraudCheckInternalReview    FraudCheckType = "INTERNAL_REVIEW"
)

// IsIdentityCheck reports whether the check proves the beneficiary's identity.
func (t FraudCheckType) IsIdentityCheck() bool {
	return t == FraudCheckUbble || t == FraudCheckDMS || t == FraudCheckEduconnect
}

type FraudCheckStatus string

const (
	FraudCheckStarted    FraudCheckStatus = "STARTED"
	FraudCheckPending    FraudCheckStatus = "PENDING"
	FraudCheckOK         FraudCheckStatus = "OK"
	FraudCheckKO         FraudCheckStatus = "KO"
	FraudCheckSuspicious FraudCheckStatus = "SUSPICIOUS"
	FraudCheckCanceled   FraudCheckStatus = "CANCELED"
	FraudCheckError      FraudCheckStatus = "ERROR"
)

type FraudReasonCode string

const (
	ReasonAgeTooOld            FraudReasonCode = "AGE_TOO_OLD"
	ReasonAgeTooYoung          FraudReasonCode = "AGE_TOO_YOUNG"
	ReasonNotEligible          FraudReasonCode = "NOT_ELIGIBLE"
	ReasonDuplicateUser        FraudReasonCode = "DUPLICATE_USER"
	ReasonDuplicateIDPiece     FraudReasonCode = "DUPLICATE_ID_PIECE_NUMBER"
	ReasonIDCheckExpired       FraudReasonCode = "ID_CHECK_EXPIRED"
	ReasonIDCheckNotSupported  FraudReasonCode = "ID_CHECK_NOT_SUPPORTED"
	ReasonIDCheckUnprocessable FraudReasonCode = "ID_CHECK_UNPROCESSABLE"
	ReasonMissingBirthDate     FraudReasonCode = "MISSING_REQUIRED_DATA"
)

type EligibilityType string

const (
	EligibilityUnderage EligibilityType = "UNDERAGE"
	EligibilityAge18    EligibilityType = "AGE18"
)

// IdentityContent is the normalised result of an identity provider.
type IdentityContent struct {
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	BirthDate         *time.Time `json:"birth_date,omitempty"`
	IDDocumentNumber  string     `json:"id_document_number,omitempty"`
	DocumentExpiry    *time.Time `json:"document_expiry,omitempty"`
	DocumentSupported bool       `json:"document_supported"`
	Processable       bool       `json:"processable"`
}

type BeneficiaryFraudCheck struct {
	bun.BaseModel `bun:"table:beneficiary_fraud_checks"`

	ID              int64             `bun:"id,pk,autoincrement" json:"id"`
	UserID          int64             `bun:"user_id,notnull" json:"user_id"`
	Type            FraudCheckType    `bun:"type,notnull" json:"type"`
	ThirdPartyID    string            `bun:"third_party_id,notnull" json:"third_party_id"`
	Status          FraudCheckStatus  `bun:"status,notnull" json:"status"`
	ReasonCodes     []FraudReasonCode `bun:"reason_codes,type:jsonb" json:"reason_codes,omitempty"`
	Reason          string            `bun:"reason,nullzero" json:"reason,omitempty"`
	Content         *IdentityContent  `bun:"result_content,type:jsonb" json:"result_content,omitempty"`
	EligibilityType EligibilityType   `bun:"eligibility_type,nullzero" json:"eligibility_type,omitempty"`
	DateCreated     time.Time         `bun:"date_created,notnull" json:"date_created"`
	UpdatedAt       time.Time         `bun:"updated_at,notnull" json:"updated_at"`
}
