package main

import (
	"log"

	"github.com/rodweleo/guess-my-valentine/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
