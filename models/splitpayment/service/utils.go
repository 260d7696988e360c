package service

import (
	"errors"

	apperrors "github.com/NomadCrew/nomad-crew-payments/errors"
	"github.com/NomadCrew/nomad-crew-payments/internal/store"
	"github.com/NomadCrew/nomad-crew-payments/types"
)

// SystemActor is recorded as requester on refunds queued by the coordinator.
const SystemActor = "system"

// storeError maps store sentinels onto AppErrors. AppErrors pass through.
func storeError(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NotFound(entity, id)
	}
	return apperrors.NewDatabaseError(err)
}

func isParticipant(userID string, split *types.SplitPayment, payments []*types.IndividualPayment) bool {
	if userID == split.OrganizerID {
		return true
	}
	for _, p := range payments {
		if p.ParticipantID == userID {
			return true
		}
	}
	return false
}

func paymentOf(userID string, payments []*types.IndividualPayment) *types.IndividualPayment {
	for _, p := range payments {
		if p.ParticipantID == userID {
			return p
		}
	}
	return nil
}

func isConflict(err error) bool {
	return errors.Is(err, store.ErrConflict)
}
