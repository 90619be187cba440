package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"wab/src/config"
	"wab/src/db"
	"wab/src/lib"
	"wab/src/middlewares"
	"wab/src/models"
	"wab/src/types"
	"wab/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type TestSuite struct {
	suite.Suite
	DB       *gorm.DB
	TenantID string
}

var dbi *gorm.DB

// authMiddleware stands in for the JWT middleware so routes under test see
// a resolved identity without minting tokens.
func authMiddleware(tenantId string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set("id", uint(1))
		ctx.Set("tenant_id", tenantId)
		ctx.Set("role", "member")
	}
}

type allowAllMembership struct{}

func (allowAllMembership) GetOwnerActiveMembership(ctx context.Context, ownerId uint) (bool, error) {
	return true, nil
}

type fixedPricing struct{}

func (fixedPricing) ResolvePrice(ctx context.Context, tourId uint, participantType types.ParticipantType, memberCapabilities []string, memberFeatures []string) (*types.PriceQuote, error) {
	return &types.PriceQuote{
		ParticipantType: participantType,
		UnitAmount:      2500,
		Currency:        "usd",
		Basis:           "standard",
	}, nil
}

func (s *TestSuite) SetupSuite() {
	registerValidators()

	d, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("error opening test database: %s", err.Error())
	}
	db.NewDB(d)
	s.DB = d
	dbi = d

	err = dbi.AutoMigrate(
		&models.Tour{},
		&models.TourCapacity{},
		&models.Reservation{},
		&models.ReservationParticipant{},
		&models.PriceSnapshot{},
		&models.IdempotencyRecord{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}

	lib.NewMembershipService(allowAllMembership{})
	lib.NewPricingResolver(fixedPricing{})
	s.TenantID = uuid.NewString()
}

func (s *TestSuite) TearDownSuite() {
	inner, err := s.DB.DB()
	if err != nil {
		log.Printf("Error accessing inner db instance: %s\n", err.Error())
		return
	}
	inner.Exec(`
	DELETE FROM idempotency_records WHERE true;
	DELETE FROM price_snapshots WHERE true;
	DELETE FROM reservation_participants WHERE true;
	DELETE FROM reservations WHERE true;
	DELETE FROM tour_capacities WHERE true;
	DELETE FROM tours WHERE true;
	`)
	inner.Close()
}

func (s *TestSuite) newRouter() *gin.Engine {
	router := setupRouter()
	apiv1 := apiv1Group(router)
	apiv1.Use(authMiddleware(s.TenantID))
	tourHandlers(apiv1)
	reservationHandlers(apiv1)
	return router
}

func (s *TestSuite) TestPingRoute() {
	router := setupRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/", nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 200, w.Code)
}

func (s *TestSuite) TestMaintenanceMode() {
	os.Setenv("MAINTENANCE_MODE", "true")
	defer os.Unsetenv("MAINTENANCE_MODE")

	router := setupRouter()
	router = maintenanceModeMiddleware(router)
	apiv1Group(router)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 503, w.Code)
}

func (s *TestSuite) createTour(router *gin.Engine) uint {
	startsAt := time.Now().Add(30 * 24 * time.Hour).Format(config.TIME_PARSE_FORMAT)
	body := map[string]any{
		"title":     "Harbour Lights Tour",
		"name":      "harbour lights",
		"location":  "Bristol",
		"starts_at": startsAt,
	}
	sbody, _ := json.Marshal(&body)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/v1/tours", strings.NewReader(string(sbody)))
	router.ServeHTTP(w, req)
	assert.Equal(s.T(), 201, w.Code)
	return uint(gjson.Get(w.Body.String(), "data.id").Uint())
}

func (s *TestSuite) createCapacity(router *gin.Engine, tourId uint, maxSlots uint) uint {
	opensAt := time.Now().Add(-time.Hour).Format(config.TIME_PARSE_FORMAT)
	closesAt := time.Now().Add(24 * time.Hour).Format(config.TIME_PARSE_FORMAT)
	body := map[string]any{
		"max_slots":           maxSlots,
		"max_per_reservation": 4,
		"opens_at":            opensAt,
		"closes_at":           closesAt,
	}
	sbody, _ := json.Marshal(&body)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", fmt.Sprintf("/api/v1/tours/%d/capacities", tourId), strings.NewReader(string(sbody)))
	router.ServeHTTP(w, req)
	assert.Equal(s.T(), 201, w.Code)
	return uint(gjson.Get(w.Body.String(), "data.id").Uint())
}

func (s *TestSuite) TestTours() {
	router := s.newRouter()

	s.Run("Should reject a Tour starting in the past", func() {
		startsAt := time.Now().Add(-24 * time.Hour).Format(config.TIME_PARSE_FORMAT)
		body := map[string]any{
			"title":     "Yesterday Tour",
			"name":      "yesterday",
			"location":  "Bristol",
			"starts_at": startsAt,
		}
		sbody, _ := json.Marshal(&body)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/tours", strings.NewReader(string(sbody)))
		router.ServeHTTP(w, req)
		assert.Equal(s.T(), 400, w.Code)
	})

	s.Run("Should reject a capacity window closing before it opens", func() {
		tourId := s.createTour(router)
		opensAt := time.Now().Add(24 * time.Hour).Format(config.TIME_PARSE_FORMAT)
		closesAt := time.Now().Add(time.Hour).Format(config.TIME_PARSE_FORMAT)
		body := map[string]any{
			"max_slots": 10,
			"opens_at":  opensAt,
			"closes_at": closesAt,
		}
		sbody, _ := json.Marshal(&body)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", fmt.Sprintf("/api/v1/tours/%d/capacities", tourId), strings.NewReader(string(sbody)))
		router.ServeHTTP(w, req)
		assert.Equal(s.T(), 400, w.Code)
	})

	s.Run("Should create a Tour with a capacity window and report remaining slots", func() {
		tourId := s.createTour(router)
		capacityId := s.createCapacity(router, tourId, 12)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", fmt.Sprintf("/api/v1/tours/%d/capacities/%d/remaining", tourId, capacityId), nil)
		router.ServeHTTP(w, req)
		assert.Equal(s.T(), 200, w.Code)
		assert.Equal(s.T(), int64(12), gjson.Get(w.Body.String(), "remaining").Int())
	})
}

func (s *TestSuite) TestReservations() {
	router := s.newRouter()
	tourId := s.createTour(router)
	capacityId := s.createCapacity(router, tourId, 10)

	reservationBody := map[string]any{
		"tour":     tourId,
		"capacity": capacityId,
		"participants": []map[string]any{
			{"type": "adult", "full_name": "Ada Price"},
			{"type": "child", "full_name": "Ben Price"},
		},
	}
	sbody, _ := json.Marshal(&reservationBody)

	s.Run("Should reject a reservation without an Idempotency-Key", func() {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/reservations", strings.NewReader(string(sbody)))
		router.ServeHTTP(w, req)
		assert.Equal(s.T(), 400, w.Code)
	})

	idemKey := uuid.NewString()
	var firstResponse string

	s.Run("Should create a Held reservation", func() {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/reservations", strings.NewReader(string(sbody)))
		req.Header.Set("Idempotency-Key", idemKey)
		router.ServeHTTP(w, req)
		assert.Equal(s.T(), 201, w.Code)
		firstResponse = w.Body.String()
		assert.Equal(s.T(), "held", gjson.Get(firstResponse, "data.status").String())
		assert.NotEmpty(s.T(), gjson.Get(firstResponse, "data.tracking_code").String())
		assert.Equal(s.T(), int64(5000), gjson.Get(firstResponse, "data.amount").Int())
	})

	s.Run("Should replay the cached response on a retry", func() {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/reservations", strings.NewReader(string(sbody)))
		req.Header.Set("Idempotency-Key", idemKey)
		router.ServeHTTP(w, req)
		assert.Equal(s.T(), 201, w.Code)
		assert.Equal(s.T(), "true", w.Header().Get("Idempotent-Replay"))
		assert.Equal(s.T(), gjson.Get(firstResponse, "data.id").Uint(), gjson.Get(w.Body.String(), "data.id").Uint())

		var count int64
		dbi.Model(&models.Reservation{}).Where("tour_id = ?", tourId).Count(&count)
		assert.Equal(s.T(), int64(1), count)
	})

	s.Run("Should reject the same key with a different payload", func() {
		otherBody := map[string]any{
			"tour":     tourId,
			"capacity": capacityId,
			"participants": []map[string]any{
				{"type": "adult", "full_name": "Someone Else"},
			},
		}
		obody, _ := json.Marshal(&otherBody)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/reservations", strings.NewReader(string(obody)))
		req.Header.Set("Idempotency-Key", idemKey)
		router.ServeHTTP(w, req)
		assert.Equal(s.T(), 422, w.Code)
	})

	s.Run("Should cancel the reservation and release its slots", func() {
		reservationId := gjson.Get(firstResponse, "data.id").Uint()
		cancelBody, _ := json.Marshal(map[string]any{"reason": "change of plans"})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", fmt.Sprintf("/api/v1/reservations/%d/cancel", reservationId), strings.NewReader(string(cancelBody)))
		router.ServeHTTP(w, req)
		assert.Equal(s.T(), 200, w.Code)
		assert.Equal(s.T(), "canceled", gjson.Get(w.Body.String(), "data.status").String())

		var entry models.TourCapacity
		dbi.First(&entry, capacityId)
		assert.Equal(s.T(), uint(10), entry.RemainingSlots)
	})

	s.Run("Should return the owner's reservations", func() {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/reservations", nil)
		router.ServeHTTP(w, req)
		assert.Equal(s.T(), 200, w.Code)
		assert.Greater(s.T(), gjson.Get(w.Body.String(), "count").Int(), int64(0))
	})
}

func (s *TestSuite) TestIdempotencyMiddlewareBacksOffInFlight() {
	router := setupRouter()
	apiv1 := apiv1Group(router)
	apiv1.Use(authMiddleware(s.TenantID))
	apiv1.POST("/slow", middlewares.IdempotencyMiddleware, func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"ok": true})
	})

	key := uuid.NewString()
	record := models.IdempotencyRecord{
		Endpoint:    "POST /api/v1/slow",
		Key:         key,
		PayloadHash: utils.HashPayload("POST|/api/v1/slow|{}"),
		Processed:   false,
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	}
	tid, _ := uuid.Parse(s.TenantID)
	record.TenantID = tid
	assert.NoError(s.T(), dbi.Create(&record).Error)

	// An unprocessed record with the same payload hash means the original
	// request is still running
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/v1/slow", strings.NewReader("{}"))
	req.Header.Set("Idempotency-Key", key)
	router.ServeHTTP(w, req)
	assert.Equal(s.T(), 409, w.Code)
	assert.NotEmpty(s.T(), w.Header().Get("Retry-After"))
}

func TestRunner(t *testing.T) {
	suite.Run(t, new(TestSuite))
}
