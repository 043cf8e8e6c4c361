package models

import (
	"log"

	"github.com/mmdatafocus/bankrec_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{}, &Currency{}, &CurrencyExchange{},
		&Account{}, &Journal{}, &Partner{},
		&AccountMove{}, &AccountMoveLine{}, &PartialReconcile{},
		&Payment{}, &BatchPayment{}, &StatementLine{},
		&PubSubMessageRecord{}, &IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
