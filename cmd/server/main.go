package main

import (
	"github.com/alanchelmickjr/price-is-right-sub000/internal/bootstrap"
)

// @title Item Scanner API
// @version 1.0.0
// @description Live camera scanning and resale listing backend

// @host localhost:8080
// @BasePath /v1

func main() {
	bootstrap.Run()
}
