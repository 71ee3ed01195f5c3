package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/billing/pkg/logger"
)

type seedFile struct {
	Plans []Spec `yaml:"plans"`
}

// LoadYAML reads plan definitions in the form:
//
//	plans:
//	  - code: premium_monthly
//	    name: Premium
//	    amount: 2999
//	    currency: USD
//	    interval_unit: month
//	    interval_count: 1
//	    trial_days: 7
func LoadYAML(r io.Reader) ([]Spec, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, errors.Join(ErrInvalidSeedFile, err)
	}
	return f.Plans, nil
}

// Seed creates every plan that does not exist yet. It is safe to run on every start.
func Seed(ctx context.Context, svc *Service, specs []Spec) (created int, err error) {
	for _, spec := range specs {
		_, cerr := svc.CreatePlan(ctx, spec)
		switch {
		case cerr == nil:
			created++
		case errors.Is(cerr, ErrDuplicatePlanCode):
			svc.logger.DebugContext(ctx, "plan already seeded", logger.PlanCode(spec.Code))
		default:
			return created, cerr
		}
	}
	svc.logger.InfoContext(ctx, "plan catalog seeded", slog.Int("created", created), slog.Int("total", len(specs)))
	return created, nil
}
