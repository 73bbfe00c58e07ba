package domain

import (
	"context"
	"strings"

	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Source is the read-only authority on who belongs to which group.
type Source interface {
	FindGroup(ctx context.Context, groupID string) (*Group, error)
	// Members returns the member ids of a group sorted ascending.
	Members(ctx context.Context, groupID string) ([]string, error)
	Role(ctx context.Context, userID string) (Role, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
	// DisplayName falls back to the user id when no profile exists.
	DisplayName(ctx context.Context, userID string) (string, error)
}

var (
	ErrGroupNotFound        = paymentdomain.NewNotFound("group_not_found", "group not found")
	ErrConfirmationRequired = paymentdomain.NewConflict("confirmation_required", "removing settled rows from the group needs confirmation")
	ErrPlanChanged          = paymentdomain.NewConflict("sync_plan_changed", "group charge rows changed during sync, retry")
)

const provenancePrefix = "[grupo:"

// ProvenanceTag marks a detached row with the group it left.
func ProvenanceTag(groupID string) string {
	return provenancePrefix + groupID + "]"
}

func HasProvenance(observation, groupID string) bool {
	return strings.Contains(observation, ProvenanceTag(groupID))
}

// TagObservation appends the provenance tag once.
func TagObservation(observation, groupID string) string {
	if HasProvenance(observation, groupID) {
		return observation
	}
	observation = strings.TrimSpace(observation)
	if observation == "" {
		return ProvenanceTag(groupID)
	}
	return observation + " " + ProvenanceTag(groupID)
}

// UntagObservation removes every occurrence of the group's tag.
func UntagObservation(observation, groupID string) string {
	cleaned := strings.ReplaceAll(observation, ProvenanceTag(groupID), "")
	return strings.Join(strings.Fields(cleaned), " ")
}
