package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/dyst/internal/domain/packages"
	"github.com/oshokin/dyst/internal/logger"
)

// Outcome is the result of reconciling one package.
type Outcome int

const (
	// OutcomeUpToDate means the installed tag is the resolved one.
	OutcomeUpToDate Outcome = iota
	// OutcomeUpdated means the package was reinstalled at a newer release.
	OutcomeUpdated
	// OutcomeSkippedLocked means the package is locked.
	OutcomeSkippedLocked
	// OutcomeFailed means resolution or reinstallation failed.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUpToDate:
		return "up to date"
	case OutcomeUpdated:
		return "updated"
	case OutcomeSkippedLocked:
		return "locked"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// UpdateResult describes what happened to one package.
type UpdateResult struct {
	Repository packages.Repository
	Outcome    Outcome
	// From is the tag installed before the update.
	From string
	// To is the resolved tag, empty when resolution failed.
	To  string
	Err error
}

// UpdateReport collects the results of an update run in index order.
type UpdateReport struct {
	Results []UpdateResult
}

// Count returns the number of results with the given outcome.
func (r *UpdateReport) Count(outcome Outcome) int {
	var n int

	for i := range r.Results {
		if r.Results[i].Outcome == outcome {
			n++
		}
	}

	return n
}

// UpdateAll reconciles every installed package with its newest eligible release.
func (e *Engine) UpdateAll(ctx context.Context) (*UpdateReport, error) {
	return e.Update(ctx, nil)
}

// Update reconciles the given packages, or every installed one when only is empty.
// Locked packages are skipped with a warning. A failure of one package does not
// stop the others: the report lists every outcome and the returned error joins
// the individual failures. A pinned install tag is never reapplied.
func (e *Engine) Update(ctx context.Context, only []packages.Repository) (*UpdateReport, error) {
	records, err := e.selectRecords(ctx, only)
	if err != nil {
		return nil, err
	}

	var (
		report = &UpdateReport{Results: make([]UpdateResult, 0, len(records))}
		errs   []error
	)

	for _, record := range records {
		if err = ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		result := e.updateOne(ctx, record)
		if result.Err != nil {
			errs = append(errs, fmt.Errorf("update %s: %w", result.Repository, result.Err))
		}

		report.Results = append(report.Results, result)
	}

	return report, errors.Join(errs...)
}

func (e *Engine) selectRecords(ctx context.Context, only []packages.Repository) ([]*packages.InstalledPackage, error) {
	if len(only) == 0 {
		return e.index.List(ctx)
	}

	records := make([]*packages.InstalledPackage, 0, len(only))

	for _, repo := range only {
		record, err := e.lookup(ctx, repo)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

func (e *Engine) updateOne(ctx context.Context, record *packages.InstalledPackage) UpdateResult {
	var (
		repo   = record.Repository
		result = UpdateResult{Repository: repo, From: record.Tag}
	)

	ctx = logger.WithKV(ctx, "repository", repo.String())

	if record.Locked {
		logger.WarnKV(ctx, "Package is locked and will not be updated")

		result.Outcome = OutcomeSkippedLocked

		return result
	}

	prefs := packages.PreferencesOf(record)

	release, err := e.FetchRelease(ctx, repo, prefs)
	if err != nil {
		result.Outcome, result.Err = OutcomeFailed, err
		return result
	}

	result.To = release.Tag

	if release.Tag == record.Tag {
		logger.InfoKV(ctx, "Package is up to date", "tag", record.Tag)

		result.Outcome = OutcomeUpToDate

		return result
	}

	logger.InfoKV(ctx, "Updating package", "from", record.Tag, "to", release.Tag)

	if err = e.Uninstall(ctx, repo); err != nil {
		result.Outcome, result.Err = OutcomeFailed, err
		return result
	}

	if _, err = e.InstallRelease(ctx, repo, release, prefs); err != nil {
		logger.ErrorKV(ctx, "Package was removed but the new release could not be installed",
			"tag", release.Tag, "error", err)

		result.Outcome, result.Err = OutcomeFailed, err

		return result
	}

	result.Outcome = OutcomeUpdated

	return result
}
