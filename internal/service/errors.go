package service

import "errors"

// Business rule violations. The handler maps each to a response code.
var (
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrInvalidAmount           = errors.New("amount must be positive with at most two decimal places")
	ErrWalletNotFound          = errors.New("wallet not found")
	ErrRequestNotFound         = errors.New("withdraw request not found")
	ErrRequestAlreadyProcessed = errors.New("withdraw request already processed")
	ErrWithdrawNotEligible     = errors.New("withdraw not allowed: funds may be locked in an open trade")
	ErrEligibilityUnavailable  = errors.New("cannot verify withdraw eligibility, try again later")
	ErrSameWallet              = errors.New("payer and payee must be different users")
	ErrDepositNotFound         = errors.New("deposit not found")
)
