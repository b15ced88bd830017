package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/meishihq/meishi/internal/config"
)

// CredentialsChecker reports which collaborator credentials are missing
// from the configuration. It never looks at credential values beyond
// presence, so the report cannot leak secrets.
type CredentialsChecker struct {
	validate *validator.Validate
	cfg      *config.Config
}

// NewCredentialsChecker creates the configuration checker.
func NewCredentialsChecker(cfg *config.Config) *CredentialsChecker {
	return &CredentialsChecker{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		cfg:      cfg,
	}
}

// Name implements Checker.
func (c *CredentialsChecker) Name() string { return "config" }

// Check implements Checker.
func (c *CredentialsChecker) Check(ctx context.Context) error {
	err := c.validate.StructCtx(ctx, c.cfg)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}
	missing := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		missing = append(missing, fe.Namespace())
	}
	return fmt.Errorf("missing credentials: %s", strings.Join(missing, ", "))
}
