package client

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Column names shared by the Arrow HTTP endpoint and the Flight exchange.
const (
	TextColumn = "text"
	IDsColumn  = "ids"
	SizeColumn = "size"
)

// ErrMissingColumn is returned when a batch lacks a required column.
var ErrMissingColumn = errors.New("missing column")

var (
	// TextSchema is the request schema: one sentence per row.
	TextSchema = arrow.NewSchema(
		[]arrow.Field{{Name: TextColumn, Type: arrow.BinaryTypes.String}},
		nil,
	)

	// IDSchema is the response schema: the sentence, its ids and how many
	// of them are meaningful.
	IDSchema = arrow.NewSchema(
		[]arrow.Field{
			{Name: TextColumn, Type: arrow.BinaryTypes.String},
			{Name: IDsColumn, Type: arrow.ListOf(arrow.PrimitiveTypes.Int32)},
			{Name: SizeColumn, Type: arrow.PrimitiveTypes.Int32},
		},
		nil,
	)
)

// RecordBatchBuilder creates Arrow RecordBatches for vectorize requests
// and responses.
type RecordBatchBuilder struct {
	mem memory.Allocator
}

// NewRecordBatchBuilder creates a new builder.
func NewRecordBatchBuilder(mem memory.Allocator) *RecordBatchBuilder {
	return &RecordBatchBuilder{mem: mem}
}

// BuildTextBatch converts sentences into a TextSchema batch. Empty input
// yields a nil batch.
func (b *RecordBatchBuilder) BuildTextBatch(texts []string) (arrow.RecordBatch, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	tb := array.NewStringBuilder(b.mem)
	defer tb.Release()
	tb.AppendValues(texts, nil)

	cols := []arrow.Array{tb.NewArray()}
	defer cols[0].Release()

	return array.NewRecordBatch(TextSchema, cols, int64(len(texts))), nil
}

// BuildIDBatch converts vectorized sentences into an IDSchema batch.
func (b *RecordBatchBuilder) BuildIDBatch(texts []string, ids [][]int, sizes []int) (arrow.RecordBatch, error) {
	if len(ids) != len(texts) || len(sizes) != len(texts) {
		return nil, fmt.Errorf("row count mismatch: %d texts, %d id rows, %d sizes", len(texts), len(ids), len(sizes))
	}

	tb := array.NewStringBuilder(b.mem)
	defer tb.Release()
	listBuilder := array.NewListBuilder(b.mem, arrow.PrimitiveTypes.Int32)
	defer listBuilder.Release()
	valueBuilder := listBuilder.ValueBuilder().(*array.Int32Builder)
	sb := array.NewInt32Builder(b.mem)
	defer sb.Release()

	for i, text := range texts {
		tb.Append(text)
		listBuilder.Append(true)
		for _, id := range ids[i] {
			valueBuilder.Append(int32(id))
		}
		sb.Append(int32(sizes[i]))
	}

	cols := []arrow.Array{tb.NewArray(), listBuilder.NewArray(), sb.NewArray()}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	return array.NewRecordBatch(IDSchema, cols, int64(len(texts))), nil
}

// ReadTexts extracts the text column of a batch. The column is found by
// name, falling back to the first column; String and Binary are accepted.
func ReadTexts(rec arrow.RecordBatch) ([]string, error) {
	if rec.NumCols() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, TextColumn)
	}
	col := rec.Column(0)
	if indices := rec.Schema().FieldIndices(TextColumn); len(indices) > 0 {
		col = rec.Column(indices[0])
	}

	switch arr := col.(type) {
	case *array.String:
		texts := make([]string, arr.Len())
		for i := range texts {
			texts[i] = arr.Value(i)
		}
		return texts, nil
	case *array.Binary:
		texts := make([]string, arr.Len())
		for i := range texts {
			texts[i] = string(arr.Value(i))
		}
		return texts, nil
	default:
		return nil, fmt.Errorf("text column has type %s, want string or binary", col.DataType())
	}
}

// ReadIDs extracts the ids and size columns of an IDSchema batch.
func ReadIDs(rec arrow.RecordBatch) ([][]int, []int, error) {
	idIdx := rec.Schema().FieldIndices(IDsColumn)
	sizeIdx := rec.Schema().FieldIndices(SizeColumn)
	if len(idIdx) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingColumn, IDsColumn)
	}
	if len(sizeIdx) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingColumn, SizeColumn)
	}

	listArr, ok := rec.Column(idIdx[0]).(*array.List)
	if !ok {
		return nil, nil, fmt.Errorf("ids column has type %s", rec.Column(idIdx[0]).DataType())
	}
	values, ok := listArr.ListValues().(*array.Int32)
	if !ok {
		return nil, nil, fmt.Errorf("ids values have type %s", listArr.ListValues().DataType())
	}
	sizeArr, ok := rec.Column(sizeIdx[0]).(*array.Int32)
	if !ok {
		return nil, nil, fmt.Errorf("size column has type %s", rec.Column(sizeIdx[0]).DataType())
	}

	rows := listArr.Len()
	ids := make([][]int, rows)
	sizes := make([]int, rows)
	for i := 0; i < rows; i++ {
		start, end := listArr.ValueOffsets(i)
		row := make([]int, 0, end-start)
		for j := start; j < end; j++ {
			row = append(row, int(values.Value(int(j))))
		}
		ids[i] = row
		sizes[i] = int(sizeArr.Value(i))
	}
	return ids, sizes, nil
}
