package river

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
)

// InvitationEmailWorker processes invitation email jobs from the River
// queue. For now it logs the delivery; future versions will hand the
// message to an SMTP relay or transactional email provider.
type InvitationEmailWorker struct {
	river.WorkerDefaults[InvitationEmailArgs]
}

// Work processes a single invitation email job.
func (w *InvitationEmailWorker) Work(ctx context.Context, job *river.Job[InvitationEmailArgs]) error {
	slog.InfoContext(ctx, "sending invitation email",
		"email", job.Args.Email,
		"role", job.Args.Role,
		"organization", job.Args.Organization,
		"subdomain", job.Args.Subdomain,
		"expires_at", job.Args.ExpiresAt,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}
