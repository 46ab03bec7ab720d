package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// VectorizeCommand is the descriptor command of a vectorize exchange. It may
// carry a max length as "vectorize:<n>".
const VectorizeCommand = "vectorize"

// ErrUnknownCommand is returned for a descriptor command other than
// VectorizeCommand.
var ErrUnknownCommand = errors.New("unknown command")

// EncodeCommand builds a vectorize command. A nil maxLength leaves the
// server's configured length in place.
func EncodeCommand(maxLength *int) []byte {
	if maxLength == nil {
		return []byte(VectorizeCommand)
	}
	return []byte(VectorizeCommand + ":" + strconv.Itoa(*maxLength))
}

// ParseCommand reports the max length carried by cmd, if any. An empty
// command is a plain vectorize.
func ParseCommand(cmd []byte) (*int, error) {
	if len(cmd) == 0 {
		return nil, nil
	}
	name, arg, hasArg := strings.Cut(string(cmd), ":")
	if name != VectorizeCommand {
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, cmd)
	}
	if !hasArg {
		return nil, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("bad max length in command %q: %w", cmd, err)
	}
	return &n, nil
}

// FlightClient talks to a vecxx Flight server.
type FlightClient struct {
	client  flight.Client
	conn    *grpc.ClientConn
	breaker *CircuitBreaker
	mem     memory.Allocator
}

// FlightOption configures a FlightClient.
type FlightOption func(*FlightClient)

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *CircuitBreaker) FlightOption {
	return func(c *FlightClient) { c.breaker = cb }
}

// NewFlightClient creates a new Flight client connected to the given address.
func NewFlightClient(addr string, opts ...FlightOption) (*FlightClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}

	c := &FlightClient{
		client:  flight.NewClientFromConn(conn, nil),
		conn:    conn,
		breaker: NewCircuitBreaker(5, 30*time.Second),
		mem:     memory.NewGoAllocator(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Vectorize sends sentences through a DoExchange call and returns the ids
// and sizes the server produced, one row per sentence. The server's
// configured max length applies.
func (c *FlightClient) Vectorize(ctx context.Context, texts []string) ([][]int, []int, error) {
	return c.vectorize(ctx, texts, nil)
}

// VectorizeLength is Vectorize with an explicit max length.
func (c *FlightClient) VectorizeLength(ctx context.Context, texts []string, maxLength int) ([][]int, []int, error) {
	return c.vectorize(ctx, texts, &maxLength)
}

func (c *FlightClient) vectorize(ctx context.Context, texts []string, maxLength *int) ([][]int, []int, error) {
	if len(texts) == 0 {
		return nil, nil, nil
	}

	var ids [][]int
	var sizes []int
	err := c.breaker.Do(func() error {
		var err error
		ids, sizes, err = c.exchange(ctx, texts, EncodeCommand(maxLength))
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if len(ids) != len(texts) {
		return nil, nil, fmt.Errorf("server returned %d rows for %d texts", len(ids), len(texts))
	}
	return ids, sizes, nil
}

func (c *FlightClient) exchange(ctx context.Context, texts []string, cmd []byte) ([][]int, []int, error) {
	rec, err := NewRecordBatchBuilder(c.mem).BuildTextBatch(texts)
	if err != nil {
		return nil, nil, err
	}
	defer rec.Release()

	stream, err := c.client.DoExchange(ctx)
	if err != nil {
		return nil, nil, err
	}

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(TextSchema), ipc.WithAllocator(c.mem))
	writer.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorCMD,
		Cmd:  cmd,
	})
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return nil, nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, nil, err
	}

	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(c.mem))
	if err != nil {
		return nil, nil, err
	}
	defer reader.Release()

	var ids [][]int
	var sizes []int
	for reader.Next() {
		rowIDs, rowSizes, err := ReadIDs(reader.Record())
		if err != nil {
			return nil, nil, err
		}
		ids = append(ids, rowIDs...)
		sizes = append(sizes, rowSizes...)
	}
	if err := reader.Err(); err != nil {
		return nil, nil, err
	}
	log.Debug().Int("rows", len(ids)).Msg("Vectorize exchange complete")
	return ids, sizes, nil
}

// Breaker exposes the client's circuit breaker.
func (c *FlightClient) Breaker() *CircuitBreaker { return c.breaker }

// Close closes the client connection.
func (c *FlightClient) Close() error {
	return c.conn.Close()
}
