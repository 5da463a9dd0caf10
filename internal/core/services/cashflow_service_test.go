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
)

// --- Mock CashflowRepository ---
type MockCashflowRepository struct {
	mock.Mock
}

var _ portsrepo.CashflowRepositoryFacade = (*MockCashflowRepository)(nil)

func (m *MockCashflowRepository) FindBatchByID(ctx context.Context, batchID string) (*domain.CashflowBatch, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CashflowBatch), args.Error(1)
}

func (m *MockCashflowRepository) ListBatches(ctx context.Context, limit int) ([]domain.CashflowBatch, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CashflowBatch), args.Error(1)
}

func (m *MockCashflowRepository) ListCashflowsByBatch(ctx context.Context, batchID string) ([]domain.Cashflow, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Cashflow), args.Error(1)
}

func (m *MockCashflowRepository) FindCashflowByID(ctx context.Context, cashflowID string) (*domain.Cashflow, error) {
	args := m.Called(ctx, cashflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Cashflow), args.Error(1)
}

func (m *MockCashflowRepository) CreateBatch(ctx context.Context, batch domain.CashflowBatch) (*domain.CashflowBatch, error) {
	args := m.Called(ctx, batch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CashflowBatch), args.Error(1)
}

func (m *MockCashflowRepository) SaveCashflow(ctx context.Context, cashflow domain.Cashflow) error {
	args := m.Called(ctx, cashflow)
	return args.Error(0)
}

func (m *MockCashflowRepository) MarkCashflowsSent(ctx context.Context, cashflowIDs []string, updatedBy string) error {
	args := m.Called(ctx, cashflowIDs, updatedBy)
	return args.Error(0)
}

// --- Test Suite Setup ---
type CashflowServiceTestSuite struct {
	suite.Suite
	mockPricingRepo  *MockPricingRepository
	mockCashflowRepo *MockCashflowRepository
	service          portssvc.CashflowSvcFacade
	userID           string
	cutoff           time.Time
	batch            domain.CashflowBatch
}

func (suite *CashflowServiceTestSuite) SetupTest() {
	suite.mockPricingRepo = new(MockPricingRepository)
	suite.mockCashflowRepo = new(MockCashflowRepository)
	suite.service = services.NewCashflowService(suite.mockPricingRepo, suite.mockCashflowRepo, 0)

	suite.userID = uuid.NewString()
	suite.cutoff = time.Now().UTC().AddDate(0, 0, -1)
	suite.batch = domain.CashflowBatch{
		BatchID:    uuid.NewString(),
		Label:      "VIR42",
		CutoffDate: suite.cutoff,
	}
}

// validatedPricing builds a pricing whose single revenue/commission pair nets
// the given amount against the given booking price.
func validatedPricing(point string, net, price decimal.Decimal) domain.Pricing {
	p := domain.Pricing{
		PricingID:      uuid.NewString(),
		FinanceEventID: uuid.NewString(),
		PricingPointID: point,
		BookingPrice:   price,
		Amount:         net,
		Status:         domain.PricingValidated,
		Lines: []domain.PricingLine{
			{PricingLineID: uuid.NewString(), Kind: domain.LineOffererRevenue, Amount: net},
			{PricingLineID: uuid.NewString(), Kind: domain.LinePassCultureCommission, Amount: price.Sub(net)},
		},
	}
	return p
}

func (suite *CashflowServiceTestSuite) TestGenerateCashflows_NetsPositiveAndNegativePricings() {
	ctx := context.Background()
	point := uuid.NewString()
	// +500 from a normal pricing, -120 from an incident compensation.
	normal := validatedPricing(point, decimal.NewFromInt(500), decimal.NewFromInt(500))
	compensation := validatedPricing(point, decimal.NewFromInt(-120), decimal.Zero)

	suite.mockCashflowRepo.On("CreateBatch", mock.Anything, mock.AnythingOfType("domain.CashflowBatch")).Return(&suite.batch, nil).Once()
	suite.mockPricingRepo.On("ListValidatedPricingsUntil", mock.Anything, suite.cutoff).
		Return(map[string][]domain.Pricing{point: {normal, compensation}}, nil).Once()

	var saved domain.Cashflow
	suite.mockCashflowRepo.On("SaveCashflow", mock.Anything, mock.AnythingOfType("domain.Cashflow")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(domain.Cashflow) }).
		Return(nil).Once()

	summary, err := suite.service.GenerateCashflows(ctx, suite.cutoff, suite.userID)

	suite.Require().NoError(err)
	suite.Equal(suite.batch.BatchID, summary.BatchID)
	suite.Equal("VIR42", summary.Label)
	suite.Equal(1, summary.CashflowCount)
	suite.Empty(summary.FailedPoints)
	suite.True(summary.TotalAmount.Equal(decimal.NewFromInt(380)), "total %s", summary.TotalAmount)

	suite.True(saved.Amount.Equal(decimal.NewFromInt(380)), "cashflow %s", saved.Amount)
	suite.Equal(point, saved.ReimbursementPointID)
	suite.Equal(suite.batch.BatchID, saved.BatchID)
	suite.Equal(domain.CashflowPending, saved.Status)
	suite.Len(saved.PricingIDs, 2)
}

func (suite *CashflowServiceTestSuite) TestGenerateCashflows_OneCashflowPerPoint() {
	ctx := context.Background()
	pointA := "point-a-" + uuid.NewString()
	pointB := "point-b-" + uuid.NewString()
	byPoint := map[string][]domain.Pricing{
		pointA: {validatedPricing(pointA, decimal.NewFromInt(100), decimal.NewFromInt(100))},
		pointB: {validatedPricing(pointB, decimal.NewFromInt(200), decimal.NewFromInt(200))},
	}

	suite.mockCashflowRepo.On("CreateBatch", mock.Anything, mock.AnythingOfType("domain.CashflowBatch")).Return(&suite.batch, nil).Once()
	suite.mockPricingRepo.On("ListValidatedPricingsUntil", mock.Anything, suite.cutoff).Return(byPoint, nil).Once()
	suite.mockCashflowRepo.On("SaveCashflow", mock.Anything, mock.AnythingOfType("domain.Cashflow")).Return(nil).Twice()

	summary, err := suite.service.GenerateCashflows(ctx, suite.cutoff, suite.userID)

	suite.Require().NoError(err)
	suite.Equal(2, summary.CashflowCount)
	suite.True(summary.TotalAmount.Equal(decimal.NewFromInt(300)))
	suite.mockCashflowRepo.AssertExpectations(suite.T())
}

func (suite *CashflowServiceTestSuite) TestGenerateCashflows_LineSumViolationRejectsAndIsolates() {
	ctx := context.Background()
	brokenPoint := "a-broken-" + uuid.NewString()
	healthyPoint := "b-healthy-" + uuid.NewString()

	broken := validatedPricing(brokenPoint, decimal.NewFromInt(90), decimal.NewFromInt(100))
	// Corrupt the stored lines so they no longer sum to the booking price.
	broken.Lines[1].Amount = decimal.NewFromInt(99)
	healthy := validatedPricing(healthyPoint, decimal.NewFromInt(200), decimal.NewFromInt(200))

	suite.mockCashflowRepo.On("CreateBatch", mock.Anything, mock.AnythingOfType("domain.CashflowBatch")).Return(&suite.batch, nil).Once()
	suite.mockPricingRepo.On("ListValidatedPricingsUntil", mock.Anything, suite.cutoff).
		Return(map[string][]domain.Pricing{brokenPoint: {broken}, healthyPoint: {healthy}}, nil).Once()
	suite.mockPricingRepo.On("UpdatePricingStatus", mock.Anything, broken.PricingID, domain.PricingValidated, domain.PricingRejected, suite.userID, mock.AnythingOfType("time.Time")).
		Return(nil).Once()
	suite.mockCashflowRepo.On("SaveCashflow", mock.Anything, mock.MatchedBy(func(c domain.Cashflow) bool {
		return c.ReimbursementPointID == healthyPoint
	})).Return(nil).Once()

	summary, err := suite.service.GenerateCashflows(ctx, suite.cutoff, suite.userID)

	suite.Require().NoError(err)
	suite.Equal(1, summary.CashflowCount)
	suite.Require().Len(summary.FailedPoints, 1)
	suite.Equal(brokenPoint, summary.FailedPoints[0].ReimbursementPointID)
	suite.True(summary.TotalAmount.Equal(decimal.NewFromInt(200)))
	suite.mockPricingRepo.AssertExpectations(suite.T())
}

func (suite *CashflowServiceTestSuite) TestGenerateCashflows_CutoffInFutureRejected() {
	ctx := context.Background()

	_, err := suite.service.GenerateCashflows(ctx, time.Now().UTC().Add(time.Hour), suite.userID)

	suite.Require().Error(err)
	suite.ErrorIs(err, services.ErrCutoffInFuture)
	suite.mockCashflowRepo.AssertNotCalled(suite.T(), "CreateBatch", mock.Anything, mock.Anything)
}

func (suite *CashflowServiceTestSuite) TestGenerateCashflows_EmptyPeriodCreatesEmptyBatch() {
	ctx := context.Background()
	suite.mockCashflowRepo.On("CreateBatch", mock.Anything, mock.AnythingOfType("domain.CashflowBatch")).Return(&suite.batch, nil).Once()
	suite.mockPricingRepo.On("ListValidatedPricingsUntil", mock.Anything, suite.cutoff).
		Return(map[string][]domain.Pricing{}, nil).Once()

	summary, err := suite.service.GenerateCashflows(ctx, suite.cutoff, suite.userID)

	suite.Require().NoError(err)
	suite.Equal(0, summary.CashflowCount)
	suite.True(summary.TotalAmount.IsZero())
	suite.mockCashflowRepo.AssertNotCalled(suite.T(), "SaveCashflow", mock.Anything, mock.Anything)
}

func (suite *CashflowServiceTestSuite) TestMarkBatchSent_OnlyPendingCashflows() {
	ctx := context.Background()
	pending := domain.Cashflow{CashflowID: uuid.NewString(), BatchID: suite.batch.BatchID, Status: domain.CashflowPending}
	alreadySent := domain.Cashflow{CashflowID: uuid.NewString(), BatchID: suite.batch.BatchID, Status: domain.CashflowSent}

	suite.mockCashflowRepo.On("ListCashflowsByBatch", mock.Anything, suite.batch.BatchID).
		Return([]domain.Cashflow{pending, alreadySent}, nil).Once()
	suite.mockCashflowRepo.On("MarkCashflowsSent", mock.Anything, []string{pending.CashflowID}, suite.userID).
		Return(nil).Once()

	err := suite.service.MarkBatchSent(ctx, suite.batch.BatchID, suite.userID)

	suite.Require().NoError(err)
	suite.mockCashflowRepo.AssertExpectations(suite.T())
}

func (suite *CashflowServiceTestSuite) TestMarkBatchSent_NothingPendingIsNoOp() {
	ctx := context.Background()
	sent := domain.Cashflow{CashflowID: uuid.NewString(), BatchID: suite.batch.BatchID, Status: domain.CashflowSent}

	suite.mockCashflowRepo.On("ListCashflowsByBatch", mock.Anything, suite.batch.BatchID).
		Return([]domain.Cashflow{sent}, nil).Once()

	err := suite.service.MarkBatchSent(ctx, suite.batch.BatchID, suite.userID)

	suite.Require().NoError(err)
	suite.mockCashflowRepo.AssertNotCalled(suite.T(), "MarkCashflowsSent", mock.Anything, mock.Anything, mock.Anything)
}

func TestCashflowServiceTestSuite(t *testing.T) {
	suite.Run(t, new(CashflowServiceTestSuite))
}
