package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/ports"
)

type emailIndex struct {
	AccountID string `json:"accountId"`
}

// AccountRepositoryImpl implements the AccountRepository interface.
// Accounts live at accounts/{id}; emails/{sha256(email)} maps an address to
// its account.
type AccountRepositoryImpl struct {
	store ports.DocumentStore
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(store ports.DocumentStore) ports.AccountRepository {
	return &AccountRepositoryImpl{store: store}
}

func emailPath(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return JoinPath(EmailsPath, hex.EncodeToString(sum[:]))
}

func (r *AccountRepositoryImpl) Create(ctx context.Context, account *ports.Account) error {
	if account.ID == "" {
		return entities.ValidationError("id", "is required")
	}

	index := emailPath(account.Email)
	if _, err := r.store.Get(ctx, index); err == nil {
		return entities.ValidationError("email", "is already registered")
	} else if !errors.Is(err, ports.ErrDocumentNotFound) {
		return storeErr("get", index, err)
	}

	path := JoinPath(AccountsPath, account.ID)
	if err := r.store.Set(ctx, path, account); err != nil {
		return storeErr("create", path, err)
	}
	if err := r.store.Set(ctx, index, emailIndex{AccountID: account.ID}); err != nil {
		return storeErr("create", index, err)
	}
	return nil
}

func (r *AccountRepositoryImpl) GetByID(ctx context.Context, id string) (*ports.Account, error) {
	path := JoinPath(AccountsPath, id)
	doc, err := r.store.Get(ctx, path)
	if err != nil {
		return nil, storeErr("get", path, err)
	}

	var account ports.Account
	if err := doc.Decode(&account); err != nil {
		return nil, entities.StoreError("decode "+path, err)
	}
	account.ID = id
	return &account, nil
}

func (r *AccountRepositoryImpl) GetByEmail(ctx context.Context, email string) (*ports.Account, error) {
	index := emailPath(email)
	doc, err := r.store.Get(ctx, index)
	if err != nil {
		return nil, storeErr("get", "account for email", err)
	}

	var ref emailIndex
	if err := doc.Decode(&ref); err != nil {
		return nil, entities.StoreError("decode "+index, err)
	}
	return r.GetByID(ctx, ref.AccountID)
}

func (r *AccountRepositoryImpl) MarkVerified(ctx context.Context, id string) error {
	path := JoinPath(AccountsPath, id)
	if err := r.store.Update(ctx, path, map[string]interface{}{"emailVerified": true}); err != nil {
		return storeErr("update", path, err)
	}
	return nil
}
