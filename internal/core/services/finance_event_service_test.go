package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/pass-culture/finance_backend/internal/apperrors"
	"github.com/pass-culture/finance_backend/internal/core/domain"
	portsrepo "github.com/pass-culture/finance_backend/internal/core/ports/repositories"
	portssvc "github.com/pass-culture/finance_backend/internal/core/ports/services"
	"github.com/pass-culture/finance_backend/internal/core/services"
	"github.com/pass-culture/finance_backend/internal/dto"
)

// --- Mock BookingRepository ---
type MockBookingRepository struct {
	mock.Mock
}

var _ portsrepo.BookingRepositoryFacade = (*MockBookingRepository)(nil)

func (m *MockBookingRepository) FindBookingByID(ctx context.Context, bookingID string) (*domain.Booking, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) UpsertBooking(ctx context.Context, booking domain.Booking) error {
	args := m.Called(ctx, booking)
	return args.Error(0)
}

// --- Mock FinanceEventRepository ---
type MockFinanceEventRepository struct {
	mock.Mock
}

var _ portsrepo.FinanceEventRepositoryFacade = (*MockFinanceEventRepository)(nil)

func (m *MockFinanceEventRepository) FindEventByID(ctx context.Context, financeEventID string) (*domain.FinanceEvent, error) {
	args := m.Called(ctx, financeEventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FinanceEvent), args.Error(1)
}

func (m *MockFinanceEventRepository) FindEventByBookingID(ctx context.Context, bookingID string) (*domain.FinanceEvent, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FinanceEvent), args.Error(1)
}

func (m *MockFinanceEventRepository) ListReadyEvents(ctx context.Context, limit int) ([]domain.FinanceEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.FinanceEvent), args.Error(1)
}

func (m *MockFinanceEventRepository) ListPendingPricingPoint(ctx context.Context) ([]domain.FinanceEvent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.FinanceEvent), args.Error(1)
}

func (m *MockFinanceEventRepository) SaveEvent(ctx context.Context, event domain.FinanceEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockFinanceEventRepository) MarkEventReady(ctx context.Context, financeEventID string, pricingPointID *string, valueDate time.Time, updatedBy string, updatedAt time.Time) error {
	args := m.Called(ctx, financeEventID, pricingPointID, valueDate, updatedBy, updatedAt)
	return args.Error(0)
}

// --- Test Suite Setup ---
type FinanceEventServiceTestSuite struct {
	suite.Suite
	mockBookingRepo *MockBookingRepository
	mockEventRepo   *MockFinanceEventRepository
	service         portssvc.FinanceEventSvcFacade
	userID          string
	pricingPointID  string
	baseRequest     dto.BookingEventRequest
}

func (suite *FinanceEventServiceTestSuite) SetupTest() {
	suite.mockBookingRepo = new(MockBookingRepository)
	suite.mockEventRepo = new(MockFinanceEventRepository)
	suite.service = services.NewFinanceEventService(suite.mockBookingRepo, suite.mockEventRepo)

	suite.userID = uuid.NewString()
	suite.pricingPointID = uuid.NewString()
	suite.baseRequest = dto.BookingEventRequest{
		BookingID:      uuid.NewString(),
		Kind:           string(domain.IndividualBooking),
		Status:         string(domain.BookingBooked),
		Price:          decimal.NewFromInt(50),
		BookingDate:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		VenueID:        uuid.NewString(),
		OffererID:      uuid.NewString(),
		CategoryID:     "SPECTACLE",
		PricingPointID: &suite.pricingPointID,
	}
}

func (suite *FinanceEventServiceTestSuite) TestRecordBookingEvent_BookedCreatesPendingEvent() {
	ctx := context.Background()
	suite.mockBookingRepo.On("FindBookingByID", ctx, suite.baseRequest.BookingID).Return(nil, apperrors.ErrNotFound).Once()
	suite.mockBookingRepo.On("UpsertBooking", ctx, mock.AnythingOfType("domain.Booking")).Return(nil).Once()
	suite.mockEventRepo.On("FindEventByBookingID", ctx, suite.baseRequest.BookingID).Return(nil, apperrors.ErrNotFound).Once()
	suite.mockEventRepo.On("SaveEvent", ctx, mock.AnythingOfType("domain.FinanceEvent")).Return(nil).Once()

	event, err := suite.service.RecordBookingEvent(ctx, suite.baseRequest, suite.userID)

	suite.Require().NoError(err)
	suite.Require().NotNil(event)
	suite.Equal(domain.EventPending, event.Status)
	suite.Equal(domain.MotiveBookingUsed, event.Motive)
	suite.Require().NotNil(event.IndividualBookingID)
	suite.Equal(suite.baseRequest.BookingID, *event.IndividualBookingID)
	suite.Nil(event.CollectiveBookingID)
	suite.mockEventRepo.AssertExpectations(suite.T())
}

func (suite *FinanceEventServiceTestSuite) TestRecordBookingEvent_CollectiveBookingSetsCollectiveID() {
	ctx := context.Background()
	req := suite.baseRequest
	req.Kind = string(domain.CollectiveBooking)
	suite.mockBookingRepo.On("FindBookingByID", ctx, req.BookingID).Return(nil, apperrors.ErrNotFound).Once()
	suite.mockBookingRepo.On("UpsertBooking", ctx, mock.AnythingOfType("domain.Booking")).Return(nil).Once()
	suite.mockEventRepo.On("FindEventByBookingID", ctx, req.BookingID).Return(nil, apperrors.ErrNotFound).Once()
	suite.mockEventRepo.On("SaveEvent", ctx, mock.AnythingOfType("domain.FinanceEvent")).Return(nil).Once()

	event, err := suite.service.RecordBookingEvent(ctx, req, suite.userID)

	suite.Require().NoError(err)
	suite.Require().NotNil(event.CollectiveBookingID)
	suite.Equal(req.BookingID, *event.CollectiveBookingID)
	suite.Nil(event.IndividualBookingID)
}

func (suite *FinanceEventServiceTestSuite) TestRecordBookingEvent_BookedIsIdempotent() {
	ctx := context.Background()
	existing := &domain.FinanceEvent{
		FinanceEventID:      uuid.NewString(),
		Status:              domain.EventPending,
		Motive:              domain.MotiveBookingUsed,
		IndividualBookingID: &suite.baseRequest.BookingID,
	}
	suite.mockBookingRepo.On("FindBookingByID", ctx, suite.baseRequest.BookingID).Return(nil, apperrors.ErrNotFound).Once()
	suite.mockBookingRepo.On("UpsertBooking", ctx, mock.AnythingOfType("domain.Booking")).Return(nil).Once()
	suite.mockEventRepo.On("FindEventByBookingID", ctx, suite.baseRequest.BookingID).Return(existing, nil).Once()

	event, err := suite.service.RecordBookingEvent(ctx, suite.baseRequest, suite.userID)

	suite.Require().NoError(err)
	suite.Equal(existing.FinanceEventID, event.FinanceEventID)
	suite.mockEventRepo.AssertNotCalled(suite.T(), "SaveEvent", mock.Anything, mock.Anything)
}

func (suite *FinanceEventServiceTestSuite) TestRecordBookingEvent_UsedPromotionCarriesPricingPointAndUseDate() {
	ctx := context.Background()
	// Created at BOOKED time, before the venue had a pricing point; its value
	// date is still the booking date.
	existing := &domain.FinanceEvent{
		FinanceEventID:      uuid.NewString(),
		Status:              domain.EventPending,
		Motive:              domain.MotiveBookingUsed,
		IndividualBookingID: &suite.baseRequest.BookingID,
		PricingPointID:      nil,
		ValueDate:           suite.baseRequest.BookingDate,
	}
	req := suite.baseRequest
	req.Status = string(domain.BookingUsed)
	usedAt := time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC)
	req.UsedAt = &usedAt

	suite.mockBookingRepo.On("FindBookingByID", ctx, req.BookingID).Return(nil, apperrors.ErrNotFound).Once()
	suite.mockBookingRepo.On("UpsertBooking", ctx, mock.AnythingOfType("domain.Booking")).Return(nil).Once()
	suite.mockEventRepo.On("FindEventByBookingID", ctx, req.BookingID).Return(existing, nil).Once()
	suite.mockEventRepo.On("MarkEventReady", ctx, existing.FinanceEventID, req.PricingPointID, usedAt, suite.userID, mock.AnythingOfType("time.Time")).Return(nil).Once()

	event, err := suite.service.RecordBookingEvent(ctx, req, suite.userID)

	suite.Require().NoError(err)
	suite.Equal(domain.EventReady, event.Status)
	suite.Require().NotNil(event.PricingPointID)
	suite.Equal(suite.pricingPointID, *event.PricingPointID)
	suite.Equal(usedAt, event.ValueDate)
	suite.mockEventRepo.AssertExpectations(suite.T())
}

func (suite *FinanceEventServiceTestSuite) TestRecordBookingEvent_UsedReplayIsIdempotent() {
	ctx := context.Background()
	existing := &domain.FinanceEvent{
		FinanceEventID:      uuid.NewString(),
		Status:              domain.EventReady,
		Motive:              domain.MotiveBookingUsed,
		IndividualBookingID: &suite.baseRequest.BookingID,
		PricingPointID:      &suite.pricingPointID,
	}
	req := suite.baseRequest
	req.Status = string(domain.BookingUsed)

	suite.mockBookingRepo.On("FindBookingByID", ctx, req.BookingID).Return(nil, apperrors.ErrNotFound).Once()
	suite.mockBookingRepo.On("UpsertBooking", ctx, mock.AnythingOfType("domain.Booking")).Return(nil).Once()
	suite.mockEventRepo.On("FindEventByBookingID", ctx, req.BookingID).Return(existing, nil).Once()

	event, err := suite.service.RecordBookingEvent(ctx, req, suite.userID)

	suite.Require().NoError(err)
	suite.Equal(existing.FinanceEventID, event.FinanceEventID)
	suite.mockEventRepo.AssertNotCalled(suite.T(), "MarkEventReady", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	suite.mockEventRepo.AssertNotCalled(suite.T(), "SaveEvent", mock.Anything, mock.Anything)
}

func (suite *FinanceEventServiceTestSuite) TestRecordBookingEvent_UsedReplayBackfillsMissingPricingPoint() {
	ctx := context.Background()
	existing := &domain.FinanceEvent{
		FinanceEventID:      uuid.NewString(),
		Status:              domain.EventReady,
		Motive:              domain.MotiveBookingUsed,
		IndividualBookingID: &suite.baseRequest.BookingID,
		PricingPointID:      nil,
		ValueDate:           time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC),
	}
	req := suite.baseRequest
	req.Status = string(domain.BookingUsed)

	suite.mockBookingRepo.On("FindBookingByID", ctx, req.BookingID).Return(nil, apperrors.ErrNotFound).Once()
	suite.mockBookingRepo.On("UpsertBooking", ctx, mock.AnythingOfType("domain.Booking")).Return(nil).Once()
	suite.mockEventRepo.On("FindEventByBookingID", ctx, req.BookingID).Return(existing, nil).Once()
	suite.mockEventRepo.On("MarkEventReady", ctx, existing.FinanceEventID, req.PricingPointID, existing.ValueDate, suite.userID, mock.AnythingOfType("time.Time")).Return(nil).Once()

	event, err := suite.service.RecordBookingEvent(ctx, req, suite.userID)

	suite.Require().NoError(err)
	suite.Require().NotNil(event.PricingPointID)
	suite.Equal(suite.pricingPointID, *event.PricingPointID)
	suite.mockEventRepo.AssertExpectations(suite.T())
}

func (suite *FinanceEventServiceTestSuite) TestRecordBookingEvent_UsedAgainstPricedRejected() {
	ctx := context.Background()
	existing := &domain.FinanceEvent{
		FinanceEventID:      uuid.NewString(),
		Status:              domain.EventPriced,
		Motive:              domain.MotiveBookingUsed,
		IndividualBookingID: &suite.baseRequest.BookingID,
	}
	req := suite.baseRequest
	req.Status = string(domain.BookingUsed)

	suite.mockBookingRepo.On("FindBookingByID", ctx, req.BookingID).Return(nil, apperrors.ErrNotFound).Once()
	suite.mockBookingRepo.On("UpsertBooking", ctx, mock.AnythingOfType("domain.Booking")).Return(nil).Once()
	suite.mockEventRepo.On("FindEventByBookingID", ctx, req.BookingID).Return(existing, nil).Once()

	_, err := suite.service.RecordBookingEvent(ctx, req, suite.userID)

	suite.Require().Error(err)
	suite.ErrorIs(err, services.ErrBookingAlreadyPriced)
}

func (suite *FinanceEventServiceTestSuite) TestRecordBookingEvent_ReimbursedBookingNotOverwritten() {
	ctx := context.Background()
	stored := &domain.Booking{
		BookingID: suite.baseRequest.BookingID,
		Kind:      domain.IndividualBooking,
		Status:    domain.BookingReimbursed,
		Price:     suite.baseRequest.Price,
	}
	existing := &domain.FinanceEvent{
		FinanceEventID:      uuid.NewString(),
		Status:              domain.EventPriced,
		Motive:              domain.MotiveBookingUsed,
		IndividualBookingID: &suite.baseRequest.BookingID,
	}
	req := suite.baseRequest
	req.Status = string(domain.BookingReimbursed)

	suite.mockBookingRepo.On("FindBookingByID", ctx, req.BookingID).Return(stored, nil).Once()
	suite.mockEventRepo.On("FindEventByBookingID", ctx, req.BookingID).Return(existing, nil).Once()

	event, err := suite.service.RecordBookingEvent(ctx, req, suite.userID)

	suite.Require().NoError(err)
	suite.Equal(existing.FinanceEventID, event.FinanceEventID)
	suite.mockBookingRepo.AssertNotCalled(suite.T(), "UpsertBooking", mock.Anything, mock.Anything)
}

func (suite *FinanceEventServiceTestSuite) TestRecordBookingEvent_NonPositivePriceRejected() {
	ctx := context.Background()
	req := suite.baseRequest
	req.Price = decimal.Zero

	_, err := suite.service.RecordBookingEvent(ctx, req, suite.userID)

	suite.Require().Error(err)
	suite.ErrorIs(err, apperrors.ErrValidation)
	suite.mockBookingRepo.AssertNotCalled(suite.T(), "UpsertBooking", mock.Anything, mock.Anything)
}

func (suite *FinanceEventServiceTestSuite) TestRecordIncident_CreatesCompensatingEvent() {
	ctx := context.Background()
	booking := &domain.Booking{
		BookingID:   suite.baseRequest.BookingID,
		Kind:        domain.IndividualBooking,
		Status:      domain.BookingUsed,
		Price:       decimal.NewFromInt(50),
		BookingDate: suite.baseRequest.BookingDate,
		VenueID:     suite.baseRequest.VenueID,
		OffererID:   suite.baseRequest.OffererID,
		CategoryID:  suite.baseRequest.CategoryID,
	}
	original := &domain.FinanceEvent{
		FinanceEventID:      uuid.NewString(),
		Status:              domain.EventPriced,
		Motive:              domain.MotiveBookingUsed,
		IndividualBookingID: &booking.BookingID,
		PricingPointID:      &suite.pricingPointID,
	}

	suite.mockBookingRepo.On("FindBookingByID", ctx, booking.BookingID).Return(booking, nil).Once()
	suite.mockEventRepo.On("FindEventByBookingID", ctx, booking.BookingID).Return(original, nil).Once()
	suite.mockEventRepo.On("SaveEvent", ctx, mock.AnythingOfType("domain.FinanceEvent")).Return(nil).Once()

	event, err := suite.service.RecordIncident(ctx, dto.RecordIncidentRequest{BookingID: booking.BookingID}, suite.userID)

	suite.Require().NoError(err)
	suite.Equal(domain.EventReady, event.Status)
	suite.Equal(domain.MotiveBookingCancelledIncident, event.Motive)
	suite.Require().NotNil(event.OriginEventID)
	suite.Equal(original.FinanceEventID, *event.OriginEventID)
	suite.NotEqual(original.FinanceEventID, event.FinanceEventID)
}

func (suite *FinanceEventServiceTestSuite) TestRecordIncident_UnpricedEventRejected() {
	ctx := context.Background()
	booking := &domain.Booking{
		BookingID: suite.baseRequest.BookingID,
		Kind:      domain.IndividualBooking,
		Price:     decimal.NewFromInt(50),
	}
	original := &domain.FinanceEvent{
		FinanceEventID:      uuid.NewString(),
		Status:              domain.EventReady,
		IndividualBookingID: &booking.BookingID,
	}

	suite.mockBookingRepo.On("FindBookingByID", ctx, booking.BookingID).Return(booking, nil).Once()
	suite.mockEventRepo.On("FindEventByBookingID", ctx, booking.BookingID).Return(original, nil).Once()

	_, err := suite.service.RecordIncident(ctx, dto.RecordIncidentRequest{BookingID: booking.BookingID}, suite.userID)

	suite.Require().Error(err)
	suite.ErrorIs(err, services.ErrEventNotCompensable)
	suite.mockEventRepo.AssertNotCalled(suite.T(), "SaveEvent", mock.Anything, mock.Anything)
}

func TestFinanceEventServiceTestSuite(t *testing.T) {
	suite.Run(t, new(FinanceEventServiceTestSuite))
}
