package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/pass-culture/finance_backend/internal/core/domain"
	portsrepo "github.com/pass-culture/finance_backend/internal/core/ports/repositories"
	portssvc "github.com/pass-culture/finance_backend/internal/core/ports/services"
	"github.com/pass-culture/finance_backend/internal/core/services"
	"github.com/pass-culture/finance_backend/internal/dto"
)

// --- Mock ReimbursementRuleRepository ---
type MockRuleRepository struct {
	mock.Mock
}

var _ portsrepo.ReimbursementRuleRepositoryFacade = (*MockRuleRepository)(nil)

func (m *MockRuleRepository) FindRuleByID(ctx context.Context, ruleID string) (*domain.CustomReimbursementRule, error) {
	args := m.Called(ctx, ruleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CustomReimbursementRule), args.Error(1)
}

func (m *MockRuleRepository) ListRulesByOfferer(ctx context.Context, offererID string) ([]domain.CustomReimbursementRule, error) {
	args := m.Called(ctx, offererID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CustomReimbursementRule), args.Error(1)
}

func (m *MockRuleRepository) ListApplicableRules(ctx context.Context, offererID, categoryID string, bookingDate time.Time) ([]domain.CustomReimbursementRule, error) {
	args := m.Called(ctx, offererID, categoryID, bookingDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CustomReimbursementRule), args.Error(1)
}

func (m *MockRuleRepository) SaveRule(ctx context.Context, rule domain.CustomReimbursementRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockRuleRepository) TerminateRule(ctx context.Context, ruleID string, end time.Time, updatedBy string, updatedAt time.Time) error {
	args := m.Called(ctx, ruleID, end, updatedBy, updatedAt)
	return args.Error(0)
}

// --- Test Suite Setup ---
type ReimbursementServiceTestSuite struct {
	suite.Suite
	mockRuleRepo *MockRuleRepository
	service      portssvc.ReimbursementSvcFacade
	offererID    string
	userID       string
	booking      domain.Booking
}

func (suite *ReimbursementServiceTestSuite) SetupTest() {
	suite.mockRuleRepo = new(MockRuleRepository)
	suite.service = services.NewReimbursementService(suite.mockRuleRepo, domain.DefaultStandardRateTable())

	suite.offererID = uuid.NewString()
	suite.userID = uuid.NewString()

	usedAt := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	suite.booking = domain.Booking{
		BookingID:   uuid.NewString(),
		Kind:        domain.IndividualBooking,
		Status:      domain.BookingUsed,
		Price:       decimal.NewFromInt(100),
		BookingDate: usedAt.AddDate(0, 0, -3),
		UsedAt:      &usedAt,
		VenueID:     uuid.NewString(),
		OffererID:   suite.offererID,
		CategoryID:  "LIVRE_PAPIER",
	}
}

func (suite *ReimbursementServiceTestSuite) expectApplicableRules(rules []domain.CustomReimbursementRule) {
	suite.mockRuleRepo.On("ListApplicableRules", mock.Anything, suite.offererID, suite.booking.CategoryID, suite.booking.UsedDate()).
		Return(rules, nil).Once()
}

// --- Resolution against the standard rate table ---

func (suite *ReimbursementServiceTestSuite) TestResolveForBooking_StandardFullRate() {
	ctx := context.Background()
	suite.expectApplicableRules([]domain.CustomReimbursementRule{})

	amount, ref, err := suite.service.ResolveForBooking(ctx, suite.booking, decimal.Zero)

	suite.Require().NoError(err)
	suite.True(amount.Equal(decimal.NewFromInt(100)), "100%% below 20k, got %s", amount)
	suite.Equal(domain.RuleStandardRate, ref.Kind)
	suite.Empty(ref.RuleID)
	suite.mockRuleRepo.AssertExpectations(suite.T())
}

func (suite *ReimbursementServiceTestSuite) TestResolveForBooking_StandardDegressiveSteps() {
	ctx := context.Background()
	cases := []struct {
		revenue  string
		expected string
	}{
		{"0", "100"},
		{"19999.99", "100"},
		{"20000", "95"}, // Threshold itself already belongs to the next step
		{"39999.99", "95"},
		{"40000", "92"},
		{"149999.99", "92"},
		{"150000", "90"},
		{"1000000", "90"},
	}
	for _, tc := range cases {
		suite.expectApplicableRules([]domain.CustomReimbursementRule{})
		amount, ref, err := suite.service.ResolveForBooking(ctx, suite.booking, decimal.RequireFromString(tc.revenue))
		suite.Require().NoError(err)
		suite.True(amount.Equal(decimal.RequireFromString(tc.expected)),
			"revenue %s: expected %s, got %s", tc.revenue, tc.expected, amount)
		suite.Equal(domain.RuleStandardRate, ref.Kind)
	}
	suite.mockRuleRepo.AssertExpectations(suite.T())
}

func (suite *ReimbursementServiceTestSuite) TestResolveForBooking_ParsedRateTableOverride() {
	ctx := context.Background()
	table, err := domain.ParseStandardRateTable("10000:0.5,:0.25")
	suite.Require().NoError(err)
	service := services.NewReimbursementService(suite.mockRuleRepo, table)

	suite.expectApplicableRules([]domain.CustomReimbursementRule{})
	amount, ref, err := service.ResolveForBooking(ctx, suite.booking, decimal.Zero)
	suite.Require().NoError(err)
	suite.True(amount.Equal(decimal.NewFromInt(50)), "50%% below 10k, got %s", amount)
	suite.Equal(domain.RuleStandardRate, ref.Kind)

	suite.expectApplicableRules([]domain.CustomReimbursementRule{})
	amount, _, err = service.ResolveForBooking(ctx, suite.booking, decimal.RequireFromString("10000"))
	suite.Require().NoError(err)
	suite.True(amount.Equal(decimal.NewFromInt(25)), "25%% above 10k, got %s", amount)
}

func (suite *ReimbursementServiceTestSuite) TestResolveForBooking_Deterministic() {
	ctx := context.Background()
	revenue := decimal.RequireFromString("25000")

	suite.expectApplicableRules([]domain.CustomReimbursementRule{})
	first, firstRef, err := suite.service.ResolveForBooking(ctx, suite.booking, revenue)
	suite.Require().NoError(err)

	suite.expectApplicableRules([]domain.CustomReimbursementRule{})
	second, secondRef, err := suite.service.ResolveForBooking(ctx, suite.booking, revenue)
	suite.Require().NoError(err)

	suite.True(first.Equal(second))
	suite.Equal(firstRef, secondRef)
}

// --- Resolution against custom rules ---

func (suite *ReimbursementServiceTestSuite) TestResolveForBooking_CustomAmountWins() {
	ctx := context.Background()
	flat := decimal.NewFromInt(80)
	rule := domain.CustomReimbursementRule{
		RuleID:    uuid.NewString(),
		Kind:      domain.RuleCustomAmount,
		OffererID: suite.offererID,
		Amount:    &flat,
		Timespan:  domain.Timespan{Start: suite.booking.BookingDate.AddDate(-1, 0, 0)},
	}
	suite.expectApplicableRules([]domain.CustomReimbursementRule{rule})

	amount, ref, err := suite.service.ResolveForBooking(ctx, suite.booking, decimal.Zero)

	suite.Require().NoError(err)
	suite.True(amount.Equal(flat))
	suite.Equal(domain.RuleCustomAmount, ref.Kind)
	suite.Equal(rule.RuleID, ref.RuleID)
}

func (suite *ReimbursementServiceTestSuite) TestResolveForBooking_CategoryRuleBeatsOffererRule() {
	ctx := context.Background()
	offererRate := decimal.RequireFromString("0.5")
	categoryRate := decimal.RequireFromString("0.75")
	category := suite.booking.CategoryID
	start := suite.booking.BookingDate.AddDate(-1, 0, 0)

	offererWide := domain.CustomReimbursementRule{
		RuleID:    uuid.NewString(),
		Kind:      domain.RuleCustomPercentage,
		OffererID: suite.offererID,
		Rate:      &offererRate,
		Timespan:  domain.Timespan{Start: start},
	}
	categoryScoped := domain.CustomReimbursementRule{
		RuleID:     uuid.NewString(),
		Kind:       domain.RuleCustomPercentage,
		OffererID:  suite.offererID,
		CategoryID: &category,
		Rate:       &categoryRate,
		Timespan:   domain.Timespan{Start: start},
	}
	suite.expectApplicableRules([]domain.CustomReimbursementRule{offererWide, categoryScoped})

	amount, ref, err := suite.service.ResolveForBooking(ctx, suite.booking, decimal.Zero)

	suite.Require().NoError(err)
	suite.True(amount.Equal(decimal.NewFromInt(75)), "got %s", amount)
	suite.Equal(categoryScoped.RuleID, ref.RuleID)
}

func (suite *ReimbursementServiceTestSuite) TestResolveForBooking_AmbiguousRulesFailLoudly() {
	ctx := context.Background()
	rate := decimal.RequireFromString("0.5")
	start := suite.booking.BookingDate.AddDate(-1, 0, 0)
	first := domain.CustomReimbursementRule{
		RuleID:    uuid.NewString(),
		Kind:      domain.RuleCustomPercentage,
		OffererID: suite.offererID,
		Rate:      &rate,
		Timespan:  domain.Timespan{Start: start},
	}
	second := first
	second.RuleID = uuid.NewString()
	suite.expectApplicableRules([]domain.CustomReimbursementRule{first, second})

	_, _, err := suite.service.ResolveForBooking(ctx, suite.booking, decimal.Zero)

	suite.Require().Error(err)
	suite.ErrorIs(err, services.ErrAmbiguousRule)
}

func (suite *ReimbursementServiceTestSuite) TestResolveForBooking_AmountAbovePriceRejected() {
	ctx := context.Background()
	flat := decimal.NewFromInt(250) // Booking price is 100
	rule := domain.CustomReimbursementRule{
		RuleID:    uuid.NewString(),
		Kind:      domain.RuleCustomAmount,
		OffererID: suite.offererID,
		Amount:    &flat,
		Timespan:  domain.Timespan{Start: suite.booking.BookingDate.AddDate(-1, 0, 0)},
	}
	suite.expectApplicableRules([]domain.CustomReimbursementRule{rule})

	_, _, err := suite.service.ResolveForBooking(ctx, suite.booking, decimal.Zero)

	suite.Require().Error(err)
}

// --- Rule administration ---

func (suite *ReimbursementServiceTestSuite) TestCreateRule_Success() {
	ctx := context.Background()
	rate := decimal.RequireFromString("0.8")
	req := dto.CreateRuleRequest{
		Kind:      string(domain.RuleCustomPercentage),
		OffererID: suite.offererID,
		Rate:      &rate,
		Start:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	suite.mockRuleRepo.On("ListRulesByOfferer", ctx, suite.offererID).Return([]domain.CustomReimbursementRule{}, nil).Once()
	suite.mockRuleRepo.On("SaveRule", ctx, mock.AnythingOfType("domain.CustomReimbursementRule")).Return(nil).Once()

	rule, err := suite.service.CreateRule(ctx, req, suite.userID)

	suite.Require().NoError(err)
	suite.Require().NotNil(rule)
	suite.NotEmpty(rule.RuleID)
	suite.Equal(suite.userID, rule.CreatedBy)
	suite.mockRuleRepo.AssertExpectations(suite.T())
}

func (suite *ReimbursementServiceTestSuite) TestCreateRule_RateOutOfRange() {
	ctx := context.Background()
	rate := decimal.RequireFromString("1.2")
	req := dto.CreateRuleRequest{
		Kind:      string(domain.RuleCustomPercentage),
		OffererID: suite.offererID,
		Rate:      &rate,
		Start:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	_, err := suite.service.CreateRule(ctx, req, suite.userID)

	suite.Require().Error(err)
	suite.ErrorIs(err, services.ErrRuleRateOutOfRange)
	suite.mockRuleRepo.AssertNotCalled(suite.T(), "SaveRule", mock.Anything, mock.Anything)
}

func (suite *ReimbursementServiceTestSuite) TestCreateRule_BothValuesRejected() {
	ctx := context.Background()
	rate := decimal.RequireFromString("0.8")
	flat := decimal.NewFromInt(10)
	req := dto.CreateRuleRequest{
		Kind:      string(domain.RuleCustomPercentage),
		OffererID: suite.offererID,
		Rate:      &rate,
		Amount:    &flat,
		Start:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	_, err := suite.service.CreateRule(ctx, req, suite.userID)

	suite.Require().Error(err)
	suite.ErrorIs(err, services.ErrRuleShapeInvalid)
}

func (suite *ReimbursementServiceTestSuite) TestCreateRule_OverlapRejected() {
	ctx := context.Background()
	rate := decimal.RequireFromString("0.8")
	existingRate := decimal.RequireFromString("0.6")
	existing := domain.CustomReimbursementRule{
		RuleID:    uuid.NewString(),
		Kind:      domain.RuleCustomPercentage,
		OffererID: suite.offererID,
		Rate:      &existingRate,
		Timespan:  domain.Timespan{Start: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	req := dto.CreateRuleRequest{
		Kind:      string(domain.RuleCustomPercentage),
		OffererID: suite.offererID,
		Rate:      &rate,
		Start:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	suite.mockRuleRepo.On("ListRulesByOfferer", ctx, suite.offererID).Return([]domain.CustomReimbursementRule{existing}, nil).Once()

	_, err := suite.service.CreateRule(ctx, req, suite.userID)

	suite.Require().Error(err)
	suite.ErrorIs(err, services.ErrRuleOverlap)
	suite.mockRuleRepo.AssertNotCalled(suite.T(), "SaveRule", mock.Anything, mock.Anything)
}

func (suite *ReimbursementServiceTestSuite) TestTerminateRule_Success() {
	ctx := context.Background()
	rate := decimal.RequireFromString("0.8")
	rule := domain.CustomReimbursementRule{
		RuleID:    uuid.NewString(),
		Kind:      domain.RuleCustomPercentage,
		OffererID: suite.offererID,
		Rate:      &rate,
		Timespan:  domain.Timespan{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	suite.mockRuleRepo.On("FindRuleByID", ctx, rule.RuleID).Return(&rule, nil).Once()
	suite.mockRuleRepo.On("TerminateRule", ctx, rule.RuleID, end, suite.userID, mock.AnythingOfType("time.Time")).Return(nil).Once()

	err := suite.service.TerminateRule(ctx, rule.RuleID, dto.TerminateRuleRequest{End: end}, suite.userID)

	suite.Require().NoError(err)
	suite.mockRuleRepo.AssertExpectations(suite.T())
}

func (suite *ReimbursementServiceTestSuite) TestTerminateRule_EndBeforeStart() {
	ctx := context.Background()
	rate := decimal.RequireFromString("0.8")
	rule := domain.CustomReimbursementRule{
		RuleID:    uuid.NewString(),
		Kind:      domain.RuleCustomPercentage,
		OffererID: suite.offererID,
		Rate:      &rate,
		Timespan:  domain.Timespan{Start: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
	}

	suite.mockRuleRepo.On("FindRuleByID", ctx, rule.RuleID).Return(&rule, nil).Once()

	err := suite.service.TerminateRule(ctx, rule.RuleID, dto.TerminateRuleRequest{End: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}, suite.userID)

	suite.Require().Error(err)
	suite.ErrorIs(err, services.ErrRuleTimespan)
	suite.mockRuleRepo.AssertNotCalled(suite.T(), "TerminateRule", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReimbursementServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ReimbursementServiceTestSuite))
}
