package splitpayment

import (
	"fmt"
	"strings"

	apperrors "github.com/NomadCrew/nomad-crew-payments/errors"
	"github.com/NomadCrew/nomad-crew-payments/pkg/valueobjects"
	"github.com/NomadCrew/nomad-crew-payments/types"
)

// ComputeShares divides total among participants in the order given, which
// must be organizer first and then join order. Shares always sum to total.
//
// equal:    the first total%n participants get one extra minor unit.
// custom:   every participant names a positive amount; they must sum to total.
// weighted: floor(total*w/W) each, leftover units handed out in order.
func ComputeShares(total valueobjects.Money, participants []types.Participant, strategy types.SplitStrategy) ([]types.Share, error) {
	if !total.IsPositive() {
		return nil, apperrors.InvalidAmount("total must be greater than zero")
	}
	if err := validateParticipants(participants); err != nil {
		return nil, err
	}

	var amounts []int64
	switch strategy {
	case types.SplitStrategyEqual, "":
		parts, err := total.Split(len(participants))
		if err != nil {
			return nil, err
		}
		amounts = minorUnits(parts)

	case types.SplitStrategyCustom:
		amounts = make([]int64, len(participants))
		var sum int64
		for i, p := range participants {
			if p.Amount == nil || *p.Amount <= 0 {
				return nil, apperrors.InvalidAmount(fmt.Sprintf("participant %s needs a positive amount", p.UserID))
			}
			amounts[i] = *p.Amount
			sum += *p.Amount
		}
		if sum != total.Minor() {
			return nil, apperrors.InvalidAmount(fmt.Sprintf("custom amounts sum to %d, expected %d", sum, total.Minor()))
		}

	case types.SplitStrategyWeighted:
		weights := make([]int64, len(participants))
		for i, p := range participants {
			if p.Weight == nil || *p.Weight <= 0 {
				return nil, apperrors.InvalidAmount(fmt.Sprintf("participant %s needs a positive weight", p.UserID))
			}
			weights[i] = *p.Weight
		}
		parts, err := total.Allocate(weights)
		if err != nil {
			return nil, err
		}
		amounts = minorUnits(parts)

	default:
		return nil, apperrors.ValidationFailed("Invalid split strategy", string(strategy))
	}

	shares := make([]types.Share, len(participants))
	for i, p := range participants {
		shares[i] = types.Share{ParticipantID: p.UserID, Position: i, Amount: amounts[i]}
	}
	return shares, nil
}

func validateParticipants(participants []types.Participant) error {
	if len(participants) == 0 {
		return apperrors.InvalidParticipants("at least one participant is required")
	}
	seen := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		id := strings.TrimSpace(p.UserID)
		if id == "" {
			return apperrors.InvalidParticipants("participant user id is required")
		}
		if _, dup := seen[id]; dup {
			return apperrors.InvalidParticipants(fmt.Sprintf("participant %s listed twice", id))
		}
		seen[id] = struct{}{}
	}
	return nil
}

// OrderParticipants puts the organizer first, adding them when absent, and
// keeps everyone else in the order given.
func OrderParticipants(organizerID string, email *string, participants []types.Participant) []types.Participant {
	ordered := make([]types.Participant, 0, len(participants)+1)
	var organizer *types.Participant
	for i := range participants {
		if participants[i].UserID == organizerID && organizer == nil {
			organizer = &participants[i]
			continue
		}
		ordered = append(ordered, participants[i])
	}
	first := types.Participant{UserID: organizerID}
	if organizer != nil {
		first = *organizer
	}
	if first.Email == nil {
		first.Email = email
	}
	return append([]types.Participant{first}, ordered...)
}

func minorUnits(parts []valueobjects.Money) []int64 {
	out := make([]int64, len(parts))
	for i, p := range parts {
		out[i] = p.Minor()
	}
	return out
}
