package models

// All lists every table model, parents before children.
func All() []interface{} {
	return []interface{}{
		(*User)(nil),
		(*Offerer)(nil),
		(*Venue)(nil),
		(*Offer)(nil),
		(*Stock)(nil),
		(*Deposit)(nil),
		(*Recredit)(nil),
		(*Booking)(nil),
		(*EducationalInstitution)(nil),
		(*EducationalDeposit)(nil),
		(*CollectiveOffer)(nil),
		(*CollectiveStock)(nil),
		(*CollectiveBooking)(nil),
		(*VenuePricingPointLink)(nil),
		(*BankAccount)(nil),
		(*VenueBankAccountLink)(nil),
		(*CustomReimbursementRule)(nil),
		(*FinanceEvent)(nil),
		(*Pricing)(nil),
		(*PricingLine)(nil),
		(*CashflowBatch)(nil),
		(*Cashflow)(nil),
		(*CashflowPricing)(nil),
		(*Invoice)(nil),
		(*InvoiceLine)(nil),
		(*InvoiceCashflow)(nil),
		(*BeneficiaryFraudCheck)(nil),
	}
}
