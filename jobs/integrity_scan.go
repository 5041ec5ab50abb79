package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/authgate/authgate/internal/authz"
	jobmetrics "github.com/authgate/authgate/internal/jobs"
)

// IntegrityScanJob verifies the engine's invariants across all domains:
// every domain with assignments keeps at least one owner, and no user holds
// more than one role per domain. Multi-role drift can be healed in place;
// ownerless domains are reported for operator intervention.
type IntegrityScanJob struct {
	Store   authz.Store
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIntegrityScanJob initialises the integrity scan handler.
func NewIntegrityScanJob(store authz.Store, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityScanJob {
	return &IntegrityScanJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *IntegrityScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("integrity scan: handler not configured")
	}
	var payload IntegrityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	runID := uuid.NewString()
	logger := j.Logger.With(slog.String("job", TaskIntegrityScan), slog.String("run_id", runID))
	tracker := j.Metrics.Track(TaskIntegrityScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	domains, err := j.Store.ListDomains(ctx)
	if err != nil {
		resultErr = err
		return resultErr
	}

	ownerless := 0
	healed := 0
	for _, domain := range domains {
		err := j.Store.WithinDomain(ctx, domain, func(ctx context.Context, tx authz.Store) error {
			owners, err := tx.CountOwners(ctx, domain)
			if err != nil {
				return err
			}
			if owners == 0 {
				ownerless++
				j.Metrics.AddViolations("ownerless_domain", 1)
				logger.Error("domain has assignments but no owner", slog.String("domain", domain))
			}

			assignments, err := tx.ListRoleAssignments(ctx, domain)
			if err != nil {
				return err
			}
			byUser := make(map[string][]authz.Role)
			for _, a := range assignments {
				byUser[a.UserID] = append(byUser[a.UserID], a.Role)
			}
			for userID, roles := range byUser {
				if len(roles) <= 1 {
					continue
				}
				j.Metrics.AddViolations("multi_role_user", 1)
				logger.Warn("user holds multiple roles in domain",
					slog.String("domain", domain), slog.Int("roles", len(roles)))
				if !payload.SelfHeal {
					continue
				}
				keep := roles[0]
				for _, role := range roles[1:] {
					if role.Rank() > keep.Rank() {
						keep = role
					}
				}
				for _, role := range roles {
					if role == keep {
						continue
					}
					if _, err := tx.DeleteRoleAssignment(ctx, authz.RoleAssignment{
						UserID: userID, Role: role, Domain: domain,
					}); err != nil {
						return err
					}
				}
				healed++
			}
			return nil
		})
		if err != nil {
			resultErr = err
			return resultErr
		}
	}

	logger.Info("integrity scan finished",
		slog.Int("domains", len(domains)),
		slog.Int("ownerless", ownerless),
		slog.Int("healed_users", healed))
	return nil
}
