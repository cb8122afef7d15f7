package billing

import (
	"github.com/go-chi/chi/v5"

	"github.com/shoplane/shoplane/pkg/affiliate"
	"github.com/shoplane/shoplane/pkg/billing"
	"github.com/shoplane/shoplane/pkg/subscription"
)

// RouterOptions carries the services the billing module exposes over HTTP.
// Subscriptions and Renewals are required; Affiliates is optional and its
// routes are mounted only when provided.
type RouterOptions struct {
	Subscriptions *subscription.Service
	Renewals      *billing.RenewalService
	Affiliates    *affiliate.Service

	// ReferralBaseURL is the storefront URL referral links point at.
	ReferralBaseURL string
}

// Router builds the billing module router.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Mount("/billing", billing.Router(billing.RouterOptions{
//	    Subscriptions: subsSvc,
//	    Renewals:      renewalSvc,
//	    Affiliates:    affiliateSvc,
//	}))
func Router(opts RouterOptions) chi.Router {
	if opts.Subscriptions == nil {
		panic("billing module: subscription service is required")
	}
	if opts.Renewals == nil {
		panic("billing module: renewal service is required")
	}

	h := &handler{
		subs:            opts.Subscriptions,
		renewals:        opts.Renewals,
		affiliates:      opts.Affiliates,
		referralBaseURL: opts.ReferralBaseURL,
	}

	r := chi.NewRouter()

	r.Route("/subscription", func(sr chi.Router) {
		sr.Get("/{tenantID}", h.currentSubscription)
		sr.Post("/subscribe", h.subscribe)
		sr.Post("/trial", h.startTrial)
		sr.Post("/cancel", h.cancelSubscription)
	})

	r.Post("/renew", h.startRenewal)

	// Browser redirects are advisory; the IPN endpoint is the authoritative
	// settlement path.
	r.Route("/callbacks", func(cr chi.Router) {
		cr.Post("/success", h.callbackSuccess)
		cr.Post("/fail", h.callbackFail)
		cr.Post("/cancel", h.callbackCancel)
	})
	r.Post("/ipn", h.ipn)

	if opts.Affiliates != nil {
		r.Route("/affiliates", func(ar chi.Router) {
			ar.Post("/", h.enrollAffiliate)
			ar.Get("/{affiliateID}", h.getAffiliate)
			ar.Get("/{affiliateID}/qr", h.referralQR)
			ar.Get("/{affiliateID}/commissions", h.listCommissions)

			ar.Route("/withdrawals", func(wr chi.Router) {
				wr.Post("/", h.requestWithdrawal)
				wr.Post("/{withdrawalID}/approve", h.approveWithdrawal)
				wr.Post("/{withdrawalID}/reject", h.rejectWithdrawal)
				wr.Post("/{withdrawalID}/complete", h.completeWithdrawal)
			})
			ar.Get("/{affiliateID}/withdrawals", h.listWithdrawals)
		})

		r.Route("/webhooks/orders", func(or chi.Router) {
			or.Post("/placed", h.orderPlaced)
			or.Post("/delivered", h.orderDelivered)
			or.Post("/cancelled", h.orderCancelled)
		})
	}

	return r
}
