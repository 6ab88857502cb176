package models

import (
	"errors"
	"log"

	"bitbucket.org/mmdatafocus/stocktake_backend/config"
	mysqlDriver "github.com/go-sql-driver/mysql"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Contractor{}, &Material{}, &Warehouse{},
		&VarianceThreshold{},
		&ReconciliationUnit{}, &CountLine{},
		&Anomaly{},
		&StockBalance{}, &StockMovement{},
		&NumberSeries{},
		&History{},
		&IdempotencyKey{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
