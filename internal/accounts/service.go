package accounts

import (
	"context"
	"fmt"
	"regexp"

	"github.com/nusantara-erp/ledger-core/internal/shared"
)

// Sentinel errors for the registry.
var (
	ErrAccountNotFound = fmt.Errorf("%w: account", shared.ErrNotFound)
	ErrDuplicateCode   = shared.Conflictf("account code already exists")
	ErrTypeMismatch    = shared.Validationf("account type must match parent type")
	ErrParentCycle     = shared.Validationf("parent link would form a cycle")
	ErrInactiveParent  = shared.Validationf("parent account is inactive")
	ErrActiveChildren  = shared.Conflictf("account still has active children")
)

var codePattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)

// CreateInput groups fields for a new account.
type CreateInput struct {
	Code     string
	Name     string
	Type     AccountType
	ParentID *int64
}

// UpdateInput mutates name only; activation is handled separately.
type UpdateInput struct {
	ID   int64
	Name string
}

// Service coordinates chart of accounts operations.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create registers a new account after validating code shape, type ancestry
// and parent state.
func (s *Service) Create(ctx context.Context, input CreateInput) (Account, error) {
	if input.Code == "" || !codePattern.MatchString(input.Code) {
		return Account{}, shared.Validationf("account code %q is not a segmented code", input.Code)
	}
	if input.Name == "" {
		return Account{}, shared.Validationf("account name required")
	}
	if !input.Type.Valid() {
		return Account{}, shared.Validationf("unknown account type %q", input.Type)
	}
	if input.ParentID != nil {
		parent, err := s.repo.Get(ctx, *input.ParentID)
		if err != nil {
			return Account{}, err
		}
		if parent.Type != input.Type {
			return Account{}, ErrTypeMismatch
		}
		if !parent.IsActive {
			return Account{}, ErrInactiveParent
		}
	}
	return s.repo.Create(ctx, Account{
		Code:     input.Code,
		Name:     input.Name,
		Type:     input.Type,
		ParentID: input.ParentID,
		IsActive: true,
	})
}

// Update renames an account.
func (s *Service) Update(ctx context.Context, input UpdateInput) (Account, error) {
	if input.Name == "" {
		return Account{}, shared.Validationf("account name required")
	}
	current, err := s.repo.Get(ctx, input.ID)
	if err != nil {
		return Account{}, err
	}
	current.Name = input.Name
	return s.repo.Update(ctx, current)
}

// Deactivate marks an account inactive. Accounts with active children are
// refused so the tree never carries an inactive interior node.
func (s *Service) Deactivate(ctx context.Context, id int64) (Account, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Account{}, err
	}
	hasChildren, err := s.repo.HasActiveChildren(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if hasChildren {
		return Account{}, ErrActiveChildren
	}
	current.IsActive = false
	return s.repo.Update(ctx, current)
}

// Reparent moves an account under a new parent, guarding type consistency
// and cycles by walking to the root.
func (s *Service) Reparent(ctx context.Context, id int64, parentID *int64) (Account, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if parentID != nil {
		if *parentID == id {
			return Account{}, ErrParentCycle
		}
		parent, err := s.repo.Get(ctx, *parentID)
		if err != nil {
			return Account{}, err
		}
		if parent.Type != current.Type {
			return Account{}, ErrTypeMismatch
		}
		cursor := parent
		for cursor.ParentID != nil {
			if *cursor.ParentID == id {
				return Account{}, ErrParentCycle
			}
			cursor, err = s.repo.Get(ctx, *cursor.ParentID)
			if err != nil {
				return Account{}, err
			}
		}
	}
	current.ParentID = parentID
	return s.repo.Update(ctx, current)
}

// Get fetches one account.
func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

// List returns the chart ordered by code.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}
