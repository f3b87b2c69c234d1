package cmd

import (
	"context"
	"fmt"

	"cxcli/internal/api"
	"cxcli/internal/credentials"
	"cxcli/internal/specsync"
)

// updateSpecs drops the cache and syncs every public spec.
func (a *app) updateSpecs(ctx context.Context) error {
	s := a.syncer()
	if err := s.Reset(); err != nil {
		return fmt.Errorf("failed to reset spec cache: %w", err)
	}
	fmt.Fprintln(a.out, "Preparing API specs. Please wait...")
	report, err := s.SyncPublic(ctx)
	if err != nil {
		return fmt.Errorf("failed to sync specs: %w", err)
	}
	a.done(report)
	return nil
}

// updateUnpublishedSpecs adds the specs of services deployed for the
// customer but missing from the public catalog.
func (a *app) updateUnpublishedSpecs(ctx context.Context) error {
	creds, err := credentials.Resolve(a.secrets)
	if err != nil {
		return err
	}
	client := api.NewClient(a.cfg.ReleasesURL, a.client, a.tokenSource(creds), a.cfg.UserAgent)

	fmt.Fprintln(a.out, "Preparing API specs. Please wait...")
	report, err := a.syncer().SyncUnpublished(ctx, client, creds.CustomerID)
	if err != nil {
		return fmt.Errorf("failed to sync unpublished specs: %w", err)
	}
	a.done(report)
	return nil
}

func (a *app) done(report *specsync.Report) {
	a.logger.Info("specs synced",
		"fetched", report.Fetched,
		"written", len(report.Groups),
		"skipped", len(report.Skipped),
		"services", len(report.Index))
	fmt.Fprintln(a.out, successStyle.Render("Done."))
}
