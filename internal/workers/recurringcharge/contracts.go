package recurringcharge

import (
	"context"
)

type (
	// Processor charges every recurring schedule that has come due
	Processor interface {
		ProcessDue(ctx context.Context) (int, error)
	}
)
