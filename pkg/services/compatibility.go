package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/forvalt-io/forvalt-engine/pkg/apperrors"
	"github.com/forvalt-io/forvalt-engine/pkg/metrics"
	"github.com/forvalt-io/forvalt-engine/pkg/models"
	"github.com/forvalt-io/forvalt-engine/pkg/repositories"
)

// VersionLatest asks preflight to resolve the newest published version.
const VersionLatest = "latest"

// CompatibilityService answers whether a tenant may install or update to a
// target version. Preflight never returns an error: every failure, including
// storage failures, is folded into the returned check.
type CompatibilityService interface {
	// Preflight checks a target version ("latest" resolves the newest
	// published one) against the tenant's installed apps.
	Preflight(ctx context.Context, tenantID, appKey, targetVersion string) *models.CompatibilityCheck

	// CanUpgrade is Preflight on toVersion plus an upgrade-path warning when
	// the target carries breaking changes and fromVersion resolves.
	CanUpgrade(ctx context.Context, tenantID, appKey, fromVersion, toVersion string) *models.CompatibilityCheck
}

type compatibilityService struct {
	definitions repositories.DefinitionRepository
	versions    repositories.VersionRepository
	tenantApps  repositories.TenantAppRepository
	logger      *zap.Logger
}

// NewCompatibilityService creates a new compatibility service.
func NewCompatibilityService(
	definitions repositories.DefinitionRepository,
	versions repositories.VersionRepository,
	tenantApps repositories.TenantAppRepository,
	logger *zap.Logger,
) CompatibilityService {
	return &compatibilityService{
		definitions: definitions,
		versions:    versions,
		tenantApps:  tenantApps,
		logger:      logger,
	}
}

// Preflight checks a target version against the tenant's installed apps.
func (s *compatibilityService) Preflight(ctx context.Context, tenantID, appKey, targetVersion string) *models.CompatibilityCheck {
	check := models.NewCompatibilityCheck()

	if err := s.run(ctx, tenantID, appKey, targetVersion, check); err != nil {
		// The contract is that preflight never raises; unexpected storage or
		// transport failures become a single failing reason.
		s.logger.Warn("Preflight aborted by unexpected error",
			zap.String("tenant_id", tenantID),
			zap.String("app_key", appKey),
			zap.Error(err))
		check.AddReason(fmt.Sprintf("compatibility check failed: %v", err))
	}

	outcome := "ok"
	if !check.OK {
		outcome = "failed"
	}
	metrics.PreflightTotal.WithLabelValues(outcome).Inc()

	return check
}

// run performs the ordered preflight steps, mutating check in place. A nil
// return with failing reasons is a normal verdict; a non-nil error is an
// unexpected failure the caller converts into a reason.
func (s *compatibilityService) run(ctx context.Context, tenantID, appKey, targetVersion string, check *models.CompatibilityCheck) error {
	def, err := s.definitions.GetByKey(ctx, appKey)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			check.AddReason(fmt.Sprintf("app definition %q not found", appKey))
			return nil
		}
		return err
	}
	if !def.IsActive {
		check.AddReason(fmt.Sprintf("app definition %q is not active", appKey))
		return nil
	}

	target, err := s.resolveVersion(ctx, def, targetVersion)
	if err != nil {
		return err
	}
	if target == nil {
		check.AddReason(fmt.Sprintf("version %q of app %q not found", targetVersion, appKey))
		return nil
	}

	matrix, err := s.definitions.GetCompatibilityMatrix(ctx, def.ID)
	if err != nil {
		return err
	}
	if matrix != nil && len(matrix.IncompatibleWith) > 0 {
		installs, err := s.tenantApps.ListActive(ctx, tenantID)
		if err != nil {
			return err
		}
		for _, install := range installs {
			if install.Key == appKey {
				continue
			}
			candidate := install.Key + "@" + install.InstalledVersion
			for _, pattern := range matrix.IncompatibleWith {
				if matchIncompatibility(pattern, candidate) {
					check.AddReason(fmt.Sprintf("incompatible with installed app %s", candidate))
				}
			}
		}
	}

	if target.BreakingChanges {
		check.AddWarning(fmt.Sprintf("version %s contains breaking changes", target.Version))
	}
	if target.DeprecatedAt != nil {
		check.AddWarning(fmt.Sprintf("version %s was deprecated on %s", target.Version, target.DeprecatedAt.Format("2006-01-02")))
	}
	if target.EndOfLifeAt != nil {
		eol := target.EndOfLifeAt.Format("2006-01-02")
		if target.EndOfLifeAt.Before(time.Now()) {
			check.AddReason(fmt.Sprintf("version %s reached end of life on %s", target.Version, eol))
		} else {
			check.AddWarning(fmt.Sprintf("version %s will reach end of life on %s", target.Version, eol))
		}
	}

	return nil
}

// CanUpgrade is Preflight on toVersion plus an upgrade-path warning.
func (s *compatibilityService) CanUpgrade(ctx context.Context, tenantID, appKey, fromVersion, toVersion string) *models.CompatibilityCheck {
	check := s.Preflight(ctx, tenantID, appKey, toVersion)

	def, err := s.definitions.GetByKey(ctx, appKey)
	if err != nil {
		return check
	}
	to, err := s.resolveVersion(ctx, def, toVersion)
	if err != nil || to == nil || !to.BreakingChanges {
		return check
	}
	from, err := s.versions.GetByVersion(ctx, def.ID, fromVersion)
	if err != nil || from == nil {
		return check
	}

	check.AddWarning(fmt.Sprintf("upgrading %s from %s to %s crosses a breaking change", appKey, from.Version, to.Version))
	return check
}

// resolveVersion finds the target version row; "latest" (or empty) picks the
// newest published version. Returns nil when nothing matches.
func (s *compatibilityService) resolveVersion(ctx context.Context, def *models.AppDefinition, targetVersion string) (*models.AppVersion, error) {
	if targetVersion == "" || targetVersion == VersionLatest {
		versions, err := s.versions.ListByDefinition(ctx, def.ID)
		if err != nil {
			return nil, err
		}
		if len(versions) == 0 {
			return nil, nil
		}
		return versions[0], nil
	}
	return s.versions.GetByVersion(ctx, def.ID, targetVersion)
}

// matchIncompatibility tests one stored pattern against a "key@version"
// candidate. Patterns are anchored regular expressions; a pattern that does
// not compile falls back to literal equality.
func matchIncompatibility(pattern, candidate string) bool {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return pattern == candidate
	}
	return re.MatchString(candidate)
}

// Ensure compatibilityService implements CompatibilityService at compile time.
var _ CompatibilityService = (*compatibilityService)(nil)
