package main

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/23skdu/longbow-vecxx/internal/client"
)

type VecxxFlightServer struct {
	flight.BaseFlightServer
	srv   *Server
	alloc memory.Allocator
}

func NewVecxxFlightServer(srv *Server) *VecxxFlightServer {
	return &VecxxFlightServer{
		srv:   srv,
		alloc: memory.NewGoAllocator(),
	}
}

// DoExchange reads every text batch the client sends, then answers with one
// ids batch per input batch.
func (f *VecxxFlightServer) DoExchange(stream flight.FlightService_DoExchangeServer) error {
	ctx, span := tracer.Start(stream.Context(), "DoExchange")
	defer span.End()

	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(f.alloc))
	if err != nil {
		return err
	}
	defer reader.Release()

	maxLength := f.srv.maxLength
	if desc := reader.LatestFlightDescriptor(); desc != nil {
		requested, err := client.ParseCommand(desc.Cmd)
		if err != nil {
			return err
		}
		if requested != nil {
			maxLength = *requested
		}
	}

	var batches [][]string
	for reader.Next() {
		texts, err := client.ReadTexts(reader.Record())
		if err != nil {
			return err
		}
		batches = append(batches, texts)
	}
	if err := reader.Err(); err != nil {
		return err
	}

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(client.IDSchema), ipc.WithAllocator(f.alloc))
	defer writer.Close()

	total := 0
	for _, texts := range batches {
		rec, err := f.srv.vectorizeBatch(ctx, texts, maxLength)
		if err != nil {
			return err
		}
		if rec == nil {
			continue
		}
		err = writeAndRelease(writer, rec)
		if err != nil {
			return err
		}
		total += len(texts)
	}
	span.SetAttributes(attribute.Int("sequence_count", total))
	log.Debug().Int("rows", total).Msg("DoExchange complete")
	return nil
}

func writeAndRelease(w *flight.Writer, rec arrow.RecordBatch) error {
	defer rec.Release()
	return w.Write(rec)
}

func startFlightServer(ctx context.Context, addr string, srv *Server) error {
	server := flight.NewFlightServer()
	server.RegisterFlightService(NewVecxxFlightServer(srv))

	if err := server.Init(addr); err != nil {
		return fmt.Errorf("init flight server: %w", err)
	}

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	log.Info().Str("addr", server.Addr().String()).Msg("Starting vecxx Flight server")
	return server.Serve()
}
