package diary

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RegisterOwner creates the owner's profile when missing and refreshes the contact address otherwise.
func (s *Service) RegisterOwner(ctx context.Context, ownerID OwnerID, email string) (Profile, error) {
	if err := s.ready(opRegisterOwner); err != nil {
		return Profile{}, err
	}
	if ownerID == "" {
		return Profile{}, ErrInvalidOwnerID
	}
	address, err := normalizeEmail(email)
	if err != nil {
		return Profile{}, err
	}

	var profile Profile
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where(queryOwner, ownerID.String()).Take(&profile).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			now := s.now()
			profile = Profile{
				OwnerID:   ownerID.String(),
				Email:     address,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.Create(&profile).Error; err != nil {
				s.logError(opRegisterOwner, "profile_insert_failed", err, zap.String("owner_id", ownerID.String()))
				return newServiceError(opRegisterOwner, "profile_insert_failed", err)
			}
			return nil
		}
		if err != nil {
			s.logError(opRegisterOwner, "profile_select_failed", err, zap.String("owner_id", ownerID.String()))
			return newServiceError(opRegisterOwner, "profile_select_failed", err)
		}
		if profile.Email == address {
			return nil
		}
		profile.Email = address
		profile.UpdatedAt = s.now()
		if err := tx.Model(&Profile{}).
			Where(queryOwner, ownerID.String()).
			Updates(map[string]interface{}{"email": profile.Email, "updated_at": profile.UpdatedAt}).Error; err != nil {
			s.logError(opRegisterOwner, "profile_update_failed", err, zap.String("owner_id", ownerID.String()))
			return newServiceError(opRegisterOwner, "profile_update_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Profile{}, txErr
	}
	return profile, nil
}

// Profile returns the owner's profile including the persisted streak state.
func (s *Service) Profile(ctx context.Context, ownerID OwnerID) (Profile, error) {
	if err := s.ready(opProfile); err != nil {
		return Profile{}, err
	}
	return s.loadProfile(s.db.WithContext(ctx), opProfile, ownerID)
}

func (s *Service) loadProfile(db *gorm.DB, operation string, ownerID OwnerID) (Profile, error) {
	var profile Profile
	err := db.Where(queryOwner, ownerID.String()).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, newServiceError(operation, "owner_not_found", ErrOwnerNotFound)
	}
	if err != nil {
		s.logError(operation, "profile_select_failed", err, zap.String("owner_id", ownerID.String()))
		return Profile{}, newServiceError(operation, "profile_select_failed", err)
	}
	return profile, nil
}

// ListRecipients returns every registered owner with a contact address.
func (s *Service) ListRecipients(ctx context.Context) ([]Recipient, error) {
	if err := s.ready(opListRecipients); err != nil {
		return nil, err
	}

	var profiles []Profile
	if err := s.db.WithContext(ctx).
		Select("owner_id", "email").
		Order("owner_id ASC").
		Find(&profiles).Error; err != nil {
		s.logError(opListRecipients, reasonQueryFailed, err)
		return nil, newServiceError(opListRecipients, reasonQueryFailed, err)
	}

	recipients := make([]Recipient, 0, len(profiles))
	for _, profile := range profiles {
		recipients = append(recipients, Recipient{
			OwnerID: OwnerID(profile.OwnerID),
			Email:   profile.Email,
		})
	}
	return recipients, nil
}
