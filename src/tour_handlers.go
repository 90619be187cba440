package main

import (
	"errors"
	"log"
	"net/http"
	"time"

	"wab/src/config"
	"wab/src/db"
	"wab/src/models"
	"wab/src/types"
	"wab/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func tourHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/tours", func(ctx *gin.Context) {
			var body types.CreateTourRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			startsAt, err := time.Parse(config.TIME_PARSE_FORMAT, body.StartsAt)
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			tenantId, _ := uuid.Parse(ctx.GetString("tenant_id"))
			tour := models.Tour{
				Title:    body.Title,
				Name:     body.Name,
				About:    &body.About,
				Location: body.Location,
				StartsAt: startsAt.UTC(),
				Status:   types.TOUR_REGISTRATION,
				TenantID: &tenantId,
			}
			db := db.GetDb()
			if err := db.Create(&tour).Error; err != nil {
				log.Printf("Error creating tour: %s\n", err.Error())
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": tour})
		}).
		GET("/tours/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var tour models.Tour
			db := db.GetDb()
			// Special windows are visible to staff only
			isStaff := ctx.GetString("role") == "admin"
			err := db.
				Where(&models.Tour{ID: params.ID}).
				Preload("Capacities", func(tx *gorm.DB) *gorm.DB {
					tx = tx.Where("active = ?", true)
					if !isStaff {
						tx = tx.Where("special = ?", false)
					}
					return tx
				}).
				First(&tour).
				Error
			if err != nil {
				err := errors.New("tour not found")
				ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": tour})
		}).
		POST("/tours/:id/capacities", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var body types.CreateCapacityRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			opensAt, err := time.Parse(config.TIME_PARSE_FORMAT, body.OpensAt)
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			closesAt, err := time.Parse(config.TIME_PARSE_FORMAT, body.ClosesAt)
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			minPer := body.MinPerReservation
			if minPer == 0 {
				minPer = 1
			}
			tenantId, _ := uuid.Parse(ctx.GetString("tenant_id"))
			entry := models.TourCapacity{
				TourID:               params.ID,
				MaxSlots:             body.MaxSlots,
				RemainingSlots:       body.MaxSlots,
				MinPerReservation:    minPer,
				MaxPerReservation:    body.MaxPerReservation,
				RegistrationOpensAt:  opensAt.UTC(),
				RegistrationClosesAt: closesAt.UTC(),
				Active:               true,
				Special:              body.Special,
				TenantID:             &tenantId,
			}
			db := db.GetDb()
			err = db.Transaction(func(tx *gorm.DB) error {
				var tour models.Tour
				if err := tx.Where(&models.Tour{ID: params.ID}).First(&tour).Error; err != nil {
					return errors.New("tour not found")
				}
				return tx.Create(&entry).Error
			})
			if err != nil {
				log.Printf("Error creating capacity for tour %d: %s\n", params.ID, err.Error())
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": entry})
		}).
		PATCH("/tours/:id/capacities/:capacityId/deactivate", func(ctx *gin.Context) {
			var params types.CapacityURIParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			db := db.GetDb()
			res := db.
				Model(&models.TourCapacity{}).
				Where(&models.TourCapacity{ID: params.CapacityID, TourID: params.TourID, Active: true}).
				Update("active", false)
			if res.Error != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": res.Error.Error()})
				return
			}
			if res.RowsAffected == 0 {
				ctx.Status(http.StatusNotFound)
				return
			}
			ctx.Status(http.StatusOK)
		}).
		GET("/tours/:id/capacities/:capacityId/remaining", func(ctx *gin.Context) {
			var params types.CapacityURIParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			remaining, err := utils.GetRemainingCapacity(ctx, params.CapacityID)
			if err != nil {
				respondBusinessError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"remaining": remaining})
		})
	return g
}
