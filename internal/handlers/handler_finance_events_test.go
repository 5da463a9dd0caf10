package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/pass-culture/finance_backend/internal/core/domain"
	portssvc "github.com/pass-culture/finance_backend/internal/core/ports/services"
	"github.com/pass-culture/finance_backend/internal/core/services"
	"github.com/pass-culture/finance_backend/internal/dto"
	"github.com/pass-culture/finance_backend/internal/handlers"
	"github.com/pass-culture/finance_backend/internal/platform/config"
)

// --- Mock FinanceEventService ---
type MockFinanceEventService struct {
	mock.Mock
}

func (m *MockFinanceEventService) GetEventByID(ctx context.Context, financeEventID string) (*domain.FinanceEvent, error) {
	args := m.Called(ctx, financeEventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FinanceEvent), args.Error(1)
}
func (m *MockFinanceEventService) ListPendingEvents(ctx context.Context) ([]domain.FinanceEvent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.FinanceEvent), args.Error(1)
}
func (m *MockFinanceEventService) RecordBookingEvent(ctx context.Context, req dto.BookingEventRequest, userID string) (*domain.FinanceEvent, error) {
	args := m.Called(ctx, req, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FinanceEvent), args.Error(1)
}
func (m *MockFinanceEventService) RecordIncident(ctx context.Context, req dto.RecordIncidentRequest, userID string) (*domain.FinanceEvent, error) {
	args := m.Called(ctx, req, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FinanceEvent), args.Error(1)
}

// Ensure mock implements the interface
var _ portssvc.FinanceEventSvcFacade = (*MockFinanceEventService)(nil)

// --- Test Suite ---
type FinanceEventHandlerTestSuite struct {
	suite.Suite
	router                  *gin.Engine
	mockFinanceEventService *MockFinanceEventService
	jwtSecret               string
}

// generateTestToken creates a dummy JWT for testing.
func (suite *FinanceEventHandlerTestSuite) generateTestToken(userID string) string {
	claims := jwt.RegisteredClaims{
		Issuer:    "finance-backend-test",
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedString, err := token.SignedString([]byte(suite.jwtSecret))
	if err != nil {
		suite.FailNow("Failed to sign test token", err.Error())
	}
	return signedString
}

func (suite *FinanceEventHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	suite.router = gin.New()
	suite.jwtSecret = "test-secret-key-that-is-long-enough"

	suite.mockFinanceEventService = new(MockFinanceEventService)

	cfg := &config.Config{JWTSecret: suite.jwtSecret, IsProduction: true}
	serviceContainer := &portssvc.ServiceContainer{FinanceEvent: suite.mockFinanceEventService}
	handlers.RegisterRoutes(suite.router, cfg, serviceContainer)
}

func (suite *FinanceEventHandlerTestSuite) postJSON(url string, body any, userID string) *httptest.ResponseRecorder {
	payload, err := json.Marshal(body)
	suite.Require().NoError(err)

	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+suite.generateTestToken(userID))
	}

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func bookingEventRequest() dto.BookingEventRequest {
	return dto.BookingEventRequest{
		BookingID:   uuid.NewString(),
		Kind:        "INDIVIDUAL",
		Status:      "USED",
		Price:       decimal.NewFromInt(30),
		BookingDate: time.Now().Add(-48 * time.Hour),
		VenueID:     uuid.NewString(),
		OffererID:   uuid.NewString(),
		CategoryID:  "LIVRE_PAPIER",
	}
}

// --- Test Cases ---

func (suite *FinanceEventHandlerTestSuite) TestRecordBookingEvent_Success() {
	userID := uuid.NewString()
	req := bookingEventRequest()

	expectedEvent := &domain.FinanceEvent{
		FinanceEventID:      uuid.NewString(),
		Status:              domain.EventReady,
		Motive:              domain.MotiveBookingUsed,
		IndividualBookingID: &req.BookingID,
		VenueID:             req.VenueID,
		ValueDate:           time.Now(),
	}

	suite.mockFinanceEventService.On("RecordBookingEvent",
		mock.Anything,
		mock.MatchedBy(func(r dto.BookingEventRequest) bool {
			return r.BookingID == req.BookingID && r.Status == "USED"
		}),
		userID,
	).Return(expectedEvent, nil).Once()

	w := suite.postJSON("/api/v1/bookings/events", req, userID)

	suite.Equal(http.StatusOK, w.Code)

	var responseBody dto.FinanceEventResponse
	err := json.Unmarshal(w.Body.Bytes(), &responseBody)
	suite.Require().NoError(err)
	suite.Equal(expectedEvent.FinanceEventID, responseBody.FinanceEventID)
	suite.Equal(string(domain.EventReady), responseBody.Status)
	suite.Require().NotNil(responseBody.IndividualBookingID)
	suite.Equal(req.BookingID, *responseBody.IndividualBookingID)
	suite.Nil(responseBody.CollectiveBookingID)

	suite.mockFinanceEventService.AssertExpectations(suite.T())
}

func (suite *FinanceEventHandlerTestSuite) TestRecordBookingEvent_MissingFieldsRejected() {
	userID := uuid.NewString()

	// No price, no status: binding must fail before the service is reached.
	w := suite.postJSON("/api/v1/bookings/events", gin.H{"bookingID": uuid.NewString()}, userID)

	suite.Equal(http.StatusBadRequest, w.Code)
	suite.mockFinanceEventService.AssertNotCalled(suite.T(), "RecordBookingEvent")
}

func (suite *FinanceEventHandlerTestSuite) TestRecordBookingEvent_AlreadyPricedConflict() {
	userID := uuid.NewString()
	req := bookingEventRequest()

	suite.mockFinanceEventService.On("RecordBookingEvent", mock.Anything, mock.Anything, userID).
		Return(nil, services.ErrBookingAlreadyPriced).Once()

	w := suite.postJSON("/api/v1/bookings/events", req, userID)

	suite.Equal(http.StatusConflict, w.Code)
	suite.mockFinanceEventService.AssertExpectations(suite.T())
}

func (suite *FinanceEventHandlerTestSuite) TestRecordBookingEvent_Unauthorized() {
	w := suite.postJSON("/api/v1/bookings/events", bookingEventRequest(), "")

	suite.Equal(http.StatusUnauthorized, w.Code)
	suite.mockFinanceEventService.AssertNotCalled(suite.T(), "RecordBookingEvent")
}

func (suite *FinanceEventHandlerTestSuite) TestListPendingEvents_Success() {
	userID := uuid.NewString()
	bookingID := uuid.NewString()
	events := []domain.FinanceEvent{
		{
			FinanceEventID:      uuid.NewString(),
			Status:              domain.EventReady,
			Motive:              domain.MotiveBookingUsed,
			IndividualBookingID: &bookingID,
			VenueID:             uuid.NewString(),
			ValueDate:           time.Now(),
		},
	}

	suite.mockFinanceEventService.On("ListPendingEvents", mock.Anything).Return(events, nil).Once()

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/finance-events/pending", nil)
	req.Header.Set("Authorization", "Bearer "+suite.generateTestToken(userID))
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusOK, w.Code)

	var responseBody dto.ListFinanceEventsResponse
	err := json.Unmarshal(w.Body.Bytes(), &responseBody)
	suite.Require().NoError(err)
	suite.Len(responseBody.Events, 1)
	suite.Equal(events[0].FinanceEventID, responseBody.Events[0].FinanceEventID)

	suite.mockFinanceEventService.AssertExpectations(suite.T())
}

func TestFinanceEventHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(FinanceEventHandlerTestSuite))
}
