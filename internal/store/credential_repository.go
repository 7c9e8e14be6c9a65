// path: internal/store/credential_repository.go

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	postdomain "github.com/techappsUT/threads-scheduler/internal/domain/post"
)

// CredentialRepository resolves Credential records, decrypting the access
// token on read. The core never writes credentials; OAuth/provisioning is
// out of scope and owned by a surrounding system.
type CredentialRepository struct {
	db        *gorm.DB
	encryptor *CredentialEncryption
}

func NewCredentialRepository(db *gorm.DB, encryptor *CredentialEncryption) *CredentialRepository {
	return &CredentialRepository{db: db, encryptor: encryptor}
}

func (r *CredentialRepository) GetCredential(ctx context.Context, accountID *uuid.UUID) (*postdomain.Credential, error) {
	var m CredentialModel
	query := r.db.WithContext(ctx)
	if accountID != nil {
		query = query.Where("id = ?", *accountID)
	} else {
		query = query.Where("is_default = ?", true)
	}

	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("store: no credential found for account")
		}
		return nil, fmt.Errorf("store: find credential: %w", err)
	}

	token, err := r.encryptor.Decrypt(m.AccessTokenCipher)
	if err != nil {
		return nil, fmt.Errorf("store: decrypt credential %s: %w", m.ID, err)
	}

	return &postdomain.Credential{
		ID:             m.ID,
		PlatformUserID: m.PlatformUserID,
		AccessToken:    token,
		ExpiresAt:      m.ExpiresAt,
	}, nil
}
