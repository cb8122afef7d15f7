package subscription

import "errors"

var (
	ErrPlanNotFound             = errors.New("subscription plan not found")
	ErrInvalidPlanConfiguration = errors.New("invalid subscription plan configuration")
	ErrFailedToLoadPlans        = errors.New("failed to load subscription plans")

	ErrSubscriptionNotFound      = errors.New("subscription not found")
	ErrSubscriptionAlreadyExists = errors.New("tenant already has a live subscription")
	ErrInvalidSubscriptionState  = errors.New("invalid subscription state")

	ErrTrialNotAvailable = errors.New("plan has no trial period")
)
