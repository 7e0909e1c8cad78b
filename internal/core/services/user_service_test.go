package services_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/expensio/expensio_backend/internal/apperrors"
	"github.com/expensio/expensio_backend/internal/core/domain"
	portssvc "github.com/expensio/expensio_backend/internal/core/ports/services"
	"github.com/expensio/expensio_backend/internal/core/services"
	"github.com/expensio/expensio_backend/internal/dto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type UserServiceTestSuite struct {
	suite.Suite
	mockUserRepo *MockUserRepository
	service      portssvc.UserSvcFacade
	adminID      string
}

func (suite *UserServiceTestSuite) SetupTest() {
	suite.mockUserRepo = new(MockUserRepository)
	suite.service = services.NewUserService(suite.mockUserRepo)
	suite.adminID = uuid.NewString()
}

// --- Test Cases ---

func (suite *UserServiceTestSuite) TestCreateUser_Success() {
	ctx := context.Background()
	req := dto.CreateUserRequest{
		Name:  "Rui Costa",
		Email: "rui@example.com",
		Role:  domain.RoleApprover,
	}

	suite.mockUserRepo.On("SaveUser", ctx, mock.MatchedBy(func(user domain.User) bool {
		return user.Name == req.Name &&
			user.Email == req.Email &&
			user.Role == domain.RoleApprover &&
			user.IsActive &&
			user.CreatedBy == suite.adminID
	})).Return(nil).Once()

	created, err := suite.service.CreateUser(ctx, req, suite.adminID)

	suite.Require().NoError(err)
	suite.Require().NotNil(created)
	suite.NotEmpty(created.UserID)
	suite.True(created.IsActive)
	suite.mockUserRepo.AssertExpectations(suite.T())
}

func (suite *UserServiceTestSuite) TestCreateUser_RejectsUnknownRole() {
	ctx := context.Background()
	req := dto.CreateUserRequest{
		Name:  "Rui Costa",
		Email: "rui@example.com",
		Role:  domain.UserRole("SUPERVISOR"),
	}

	_, err := suite.service.CreateUser(ctx, req, suite.adminID)

	suite.Require().Error(err)
	suite.ErrorIs(err, apperrors.ErrValidation)
	suite.mockUserRepo.AssertNotCalled(suite.T(), "SaveUser", mock.Anything, mock.Anything)
}

func (suite *UserServiceTestSuite) TestCreateUser_DuplicateEmail() {
	ctx := context.Background()
	req := dto.CreateUserRequest{
		Name:  "Rui Costa",
		Email: "rui@example.com",
		Role:  domain.RoleEmployee,
	}
	dupErr := fmt.Errorf("user email taken: %w", apperrors.ErrDuplicate)

	suite.mockUserRepo.On("SaveUser", ctx, mock.AnythingOfType("domain.User")).Return(dupErr).Once()

	_, err := suite.service.CreateUser(ctx, req, suite.adminID)

	suite.Require().Error(err)
	suite.ErrorIs(err, apperrors.ErrDuplicate)
}

func (suite *UserServiceTestSuite) TestGetUserByID_Success() {
	ctx := context.Background()
	userID := uuid.NewString()
	user := &domain.User{UserID: userID, Name: "Rui Costa", Role: domain.RoleEmployee, IsActive: true}

	suite.mockUserRepo.On("FindUserByID", ctx, userID).Return(user, nil).Once()

	found, err := suite.service.GetUserByID(ctx, userID)

	suite.Require().NoError(err)
	suite.Equal(userID, found.UserID)
	suite.mockUserRepo.AssertExpectations(suite.T())
}

func (suite *UserServiceTestSuite) TestGetUserByID_NotFound() {
	ctx := context.Background()
	userID := uuid.NewString()

	suite.mockUserRepo.On("FindUserByID", ctx, userID).Return(nil, fmt.Errorf("user not found: %w", apperrors.ErrNotFound)).Once()

	_, err := suite.service.GetUserByID(ctx, userID)

	suite.Require().Error(err)
	suite.ErrorIs(err, apperrors.ErrNotFound)
}

func (suite *UserServiceTestSuite) TestListUsers_ClampsPageSize() {
	ctx := context.Background()

	suite.mockUserRepo.On("FindUsers", ctx, 100, 0).Return([]domain.User{}, nil).Once()

	users, err := suite.service.ListUsers(ctx, dto.ListUsersParams{Limit: 5000, Offset: -3})

	suite.Require().NoError(err)
	suite.NotNil(users)
	suite.Empty(users)
	suite.mockUserRepo.AssertExpectations(suite.T())
}

func (suite *UserServiceTestSuite) TestDeactivateUser_SelfAllowed() {
	ctx := context.Background()
	userID := uuid.NewString()

	suite.mockUserRepo.On("MarkUserDeleted", ctx, userID, mock.AnythingOfType("time.Time"), userID).Return(nil).Once()

	err := suite.service.DeactivateUser(ctx, userID, userID)

	suite.Require().NoError(err)
	// Deactivating yourself needs no role lookup.
	suite.mockUserRepo.AssertNotCalled(suite.T(), "FindUserByID", mock.Anything, mock.Anything)
	suite.mockUserRepo.AssertExpectations(suite.T())
}

func (suite *UserServiceTestSuite) TestDeactivateUser_AdminMayDeactivateOthers() {
	ctx := context.Background()
	targetID := uuid.NewString()
	admin := &domain.User{UserID: suite.adminID, Role: domain.RoleAdmin, IsActive: true}

	suite.mockUserRepo.On("FindUserByID", ctx, suite.adminID).Return(admin, nil).Once()
	suite.mockUserRepo.On("MarkUserDeleted", ctx, targetID, mock.AnythingOfType("time.Time"), suite.adminID).Return(nil).Once()

	err := suite.service.DeactivateUser(ctx, targetID, suite.adminID)

	suite.Require().NoError(err)
	suite.mockUserRepo.AssertExpectations(suite.T())
}

func (suite *UserServiceTestSuite) TestDeactivateUser_NonAdminForbidden() {
	ctx := context.Background()
	targetID := uuid.NewString()
	requesterID := uuid.NewString()
	approver := &domain.User{UserID: requesterID, Role: domain.RoleApprover, IsActive: true}

	suite.mockUserRepo.On("FindUserByID", ctx, requesterID).Return(approver, nil).Once()

	err := suite.service.DeactivateUser(ctx, targetID, requesterID)

	suite.Require().Error(err)
	suite.ErrorIs(err, apperrors.ErrForbidden)
	suite.mockUserRepo.AssertNotCalled(suite.T(), "MarkUserDeleted", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// --- Run Test Suite ---
func TestUserService(t *testing.T) {
	suite.Run(t, new(UserServiceTestSuite))
}
