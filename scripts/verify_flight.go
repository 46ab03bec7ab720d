//go:build ignore

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/23skdu/longbow-vecxx/internal/client"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	addr := "localhost:9090"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	log.Info().Str("addr", addr).Msg("Connecting to vecxx Flight server")

	c, err := client.NewFlightClient(addr, client.WithBreaker(client.NewCircuitBreaker(10, time.Second)))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create client")
	}
	defer c.Close()

	texts := []string{
		"My name is Dan .",
		"I am from Ann Arbor , Michigan .",
		"in Washtenaw County",
	}

	var ids [][]int
	var sizes []int
	for i := 0; i < 10; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		ids, sizes, err = c.Vectorize(ctx, texts)
		cancel()
		if err == nil {
			break
		}
		log.Warn().Err(err).Str("breaker", c.Breaker().State().String()).Msg("Vectorize failed, retrying...")
		time.Sleep(1 * time.Second)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Vectorize failed after retries")
	}

	if len(ids) != len(texts) {
		log.Fatal().Int("expected", len(texts)).Int("got", len(ids)).Msg("Count mismatch")
	}

	for i, row := range ids {
		if sizes[i] == 0 || sizes[i] > len(row) {
			log.Fatal().Int("index", i).Int("size", sizes[i]).Int("len", len(row)).Msg("Bad size")
		}
		log.Info().Int("index", i).Ints("ids", row[:sizes[i]]).Msg("Row valid")
	}

	fmt.Println("VERIFICATION PASSED")
}
