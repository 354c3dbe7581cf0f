package commands

import (
	"fmt"
	"io"

	"github.com/neudinger/acctmigrate/internal/domain"
	"github.com/neudinger/acctmigrate/internal/migrate"
)

func statusMark(s domain.Status) string {
	switch s {
	case domain.StatusCreated:
		return "✓"
	case domain.StatusAlreadyExists:
		return "⚠"
	default:
		return "✗"
	}
}

// progressPrinter prints one line per record: [i/n] mark email detail.
func progressPrinter(w io.Writer) migrate.Observer {
	return func(index, total int, o domain.MigrationOutcome) {
		detail := o.Detail
		if detail == "" {
			switch o.Status {
			case domain.StatusCreated:
				detail = "created " + o.DestinationID
			case domain.StatusAlreadyExists:
				detail = "already exists " + o.DestinationID
			}
		}
		_, _ = fmt.Fprintf(w, "[%d/%d] %s %s %s\n", index+1, total, statusMark(o.Status), o.Email, detail)
	}
}
