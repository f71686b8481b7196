package cron

import (
	"context"
	"fmt"

	"github.com/martagiraldo/promptstash-backend/pkg/logger"
)

type subscriptionExpirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// SubscriptionExpiryJobParams configures the nightly expiry sweep.
type SubscriptionExpiryJobParams struct {
	Logger        *logger.Logger
	Subscriptions subscriptionExpirer
}

// NewSubscriptionExpiryJob constructs the job that downgrades users whose
// subscriptions have lapsed.
func NewSubscriptionExpiryJob(params SubscriptionExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription service required")
	}
	return &subscriptionExpiryJob{
		logg: params.Logger,
		subs: params.Subscriptions,
	}, nil
}

type subscriptionExpiryJob struct {
	logg *logger.Logger
	subs subscriptionExpirer
}

func (j *subscriptionExpiryJob) Name() string { return "subscription-expiry" }

// Run sweeps lapsed subscriptions. Partial failures are reported but the
// count of successfully downgraded users is still logged.
func (j *subscriptionExpiryJob) Run(ctx context.Context) error {
	expired, err := j.subs.ExpireOverdue(ctx)
	logCtx := j.logg.WithField(ctx, "expired_users", expired)
	if err != nil {
		j.logg.Warn(logCtx, "expiry sweep finished with errors")
		return fmt.Errorf("expire overdue subscriptions: %w", err)
	}
	j.logg.Info(logCtx, "expiry sweep finished")
	return nil
}
