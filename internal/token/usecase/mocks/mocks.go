// Package mocks provides mock implementations of the token use case interfaces for testing.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/allisson/apikeys/internal/token/domain"
	"github.com/allisson/apikeys/internal/token/usecase"
)

// MockTokenUseCase is a mock implementation of usecase.TokenUseCase for testing.
type MockTokenUseCase struct {
	mock.Mock
}

// Issue mocks the Issue method.
func (m *MockTokenUseCase) Issue(
	ctx context.Context,
	input *domain.IssueTokenInput,
) (*domain.NewlyIssuedToken, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.NewlyIssuedToken), args.Error(1)
}

// CreateGroup mocks the CreateGroup method.
func (m *MockTokenUseCase) CreateGroup(
	ctx context.Context,
	name string,
	owner domain.Owner,
) (*domain.TokenGroup, error) {
	args := m.Called(ctx, name, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TokenGroup), args.Error(1)
}

// IssueGroup mocks the IssueGroup method.
func (m *MockTokenUseCase) IssueGroup(
	ctx context.Context,
	name string,
	owner domain.Owner,
	inputs []*domain.IssueTokenInput,
) (*domain.TokenGroup, []*domain.NewlyIssuedToken, error) {
	args := m.Called(ctx, name, owner, inputs)
	var group *domain.TokenGroup
	if args.Get(0) != nil {
		group = args.Get(0).(*domain.TokenGroup)
	}
	var issued []*domain.NewlyIssuedToken
	if args.Get(1) != nil {
		issued = args.Get(1).([]*domain.NewlyIssuedToken)
	}
	return group, issued, args.Error(2)
}

// Derive mocks the Derive method.
func (m *MockTokenUseCase) Derive(
	ctx context.Context,
	parentID domain.ID,
	input *domain.IssueTokenInput,
) (*domain.NewlyIssuedToken, error) {
	args := m.Called(ctx, parentID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.NewlyIssuedToken), args.Error(1)
}

// Revoke mocks the Revoke method.
func (m *MockTokenUseCase) Revoke(ctx context.Context, tokenID domain.ID, strategyName string) ([]domain.ID, error) {
	args := m.Called(ctx, tokenID, strategyName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ID), args.Error(1)
}

// PreviewRevocation mocks the PreviewRevocation method.
func (m *MockTokenUseCase) PreviewRevocation(
	ctx context.Context,
	tokenID domain.ID,
	strategyName string,
) ([]*domain.Token, error) {
	args := m.Called(ctx, tokenID, strategyName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Token), args.Error(1)
}

// Rotate mocks the Rotate method.
func (m *MockTokenUseCase) Rotate(
	ctx context.Context,
	tokenID domain.ID,
	strategyName string,
) (*domain.NewlyIssuedToken, error) {
	args := m.Called(ctx, tokenID, strategyName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.NewlyIssuedToken), args.Error(1)
}

// IsRotatedTokenValid mocks the IsRotatedTokenValid method.
func (m *MockTokenUseCase) IsRotatedTokenValid(
	ctx context.Context,
	tokenID domain.ID,
	strategyName string,
) (bool, error) {
	args := m.Called(ctx, tokenID, strategyName)
	return args.Bool(0), args.Error(1)
}

// MockAuthenticator is a mock implementation of usecase.Authenticator for testing.
type MockAuthenticator struct {
	mock.Mock
}

// Authenticate mocks the Authenticate method.
func (m *MockAuthenticator) Authenticate(ctx context.Context, req usecase.Request) (*domain.Authentication, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Authentication), args.Error(1)
}

var (
	_ usecase.TokenUseCase  = (*MockTokenUseCase)(nil)
	_ usecase.Authenticator = (*MockAuthenticator)(nil)
)
