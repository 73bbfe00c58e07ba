package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/duesledger/internal/membership/domain"
	"gorm.io/gorm"
)

// source reads user_groups, user_group_members and profiles. Those tables
// belong to the surrounding application; nothing here writes them.
type source struct {
	db *gorm.DB
}

func NewSource(db *gorm.DB) domain.Source {
	return &source{db: db}
}

func (s *source) FindGroup(ctx context.Context, groupID string) (*domain.Group, error) {
	var row domain.Group
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, name
		 FROM user_groups
		 WHERE id = ?
		 LIMIT 1`,
		groupID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == "" {
		return nil, nil
	}
	return &row, nil
}

func (s *source) Members(ctx context.Context, groupID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Raw(
		`SELECT user_id
		 FROM user_group_members
		 WHERE group_id = ?
		 ORDER BY user_id ASC`,
		groupID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Role defaults to member for users without a profile row.
func (s *source) Role(ctx context.Context, userID string) (domain.Role, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM profiles
		 WHERE id = ?
		 LIMIT 1`,
		userID,
	).Scan(&row).Error
	if err != nil {
		return "", err
	}
	if strings.EqualFold(strings.TrimSpace(row.Role), string(domain.RoleAdmin)) {
		return domain.RoleAdmin, nil
	}
	return domain.RoleMember, nil
}

func (s *source) IsAdmin(ctx context.Context, userID string) (bool, error) {
	role, err := s.Role(ctx, userID)
	if err != nil {
		return false, err
	}
	return role == domain.RoleAdmin, nil
}

func (s *source) DisplayName(ctx context.Context, userID string) (string, error) {
	var row struct {
		FullName string `gorm:"column:full_name"`
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT full_name
		 FROM profiles
		 WHERE id = ?
		 LIMIT 1`,
		userID,
	).Scan(&row).Error
	if err != nil {
		return "", err
	}
	if name := strings.TrimSpace(row.FullName); name != "" {
		return name, nil
	}
	return userID, nil
}
