package appointment

import (
	"context"
	"fmt"
)

// AppointmentWriter persists a validated appointment together with its service
// links, participants and CREATE audit row. It relies on the caller's
// transaction for atomicity.
type AppointmentWriter struct{}

func (AppointmentWriter) Write(ctx context.Context, repo Repository, a *Appointment, res *Resources) error {
	if err := repo.InsertAppointment(ctx, a); err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}

	serviceIDs := make([]int64, 0, len(res.Services))
	for _, s := range res.Services {
		serviceIDs = append(serviceIDs, s.ID)
	}
	if err := repo.InsertServiceLinks(ctx, a.ID, serviceIDs); err != nil {
		return fmt.Errorf("insert appointment services: %w", err)
	}

	if len(res.Participants) > 0 {
		participants := make([]Participant, 0, len(res.Participants))
		for _, p := range res.Participants {
			participants = append(participants, Participant{
				AppointmentID: a.ID,
				EmployeeID:    p.ID,
				Role:          RoleAssistant,
			})
		}
		if err := repo.InsertParticipants(ctx, participants); err != nil {
			return fmt.Errorf("insert appointment participants: %w", err)
		}
	}

	err := repo.InsertAuditLog(ctx, &AuditLog{
		AppointmentID: a.ID,
		ActionType:    ActionCreate,
		NewStatus:     statusPtr(a.Status),
		Notes:         a.Notes,
		PerformedBy:   a.CreatedBy,
		CreatedAt:     a.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert create audit log: %w", err)
	}
	return nil
}
