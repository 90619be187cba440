package boot

import (
	"log"

	"wab/src/common"
	"wab/src/config"
	"wab/src/db"
	"wab/src/lib"
	"wab/src/models"

	"gorm.io/gorm"
)

func InitDb() *gorm.DB {
	db := db.GetDb()

	err := db.AutoMigrate(
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

	return db
}

// InitSweeper starts the expiry sweeper on the shared scheduler.
func InitSweeper() *common.Sweeper {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return nil
	}
	cfg := config.LoadSweeperConfig()
	sweeper := common.NewSweeper(db.GetDb(), cfg)
	sweeper.Start()
	sched.Start()
	return sweeper
}

func InitBroker() {
	go lib.KafkaCreateTopics("reservations-expired", "reservations-payment-failed", "reservations-confirmed")
	go common.SQSConsumers()
}

func StopScheduler() {
	lib.StopScheduler()
}
