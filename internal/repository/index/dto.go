package index

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Hash field names for chunk records. Double underscore avoids collisions
// with future user metadata fields.
const (
	fieldText   = "__text"
	fieldSource = "source"
	fieldPage   = "page"
	fieldOffset = "offset"
	fieldVector = "vector"
	scoreField  = "__vector_score"
)

// recordFields flattens an index record into store hash fields.
func recordFields(rec domain.IndexRecord) map[string]string {
	return map[string]string{
		fieldText:   rec.Chunk.Text,
		fieldSource: rec.Chunk.Source,
		fieldPage:   strconv.Itoa(rec.Chunk.Page),
		fieldOffset: strconv.Itoa(rec.Chunk.Offset),
		fieldVector: vectorToBytes(rec.Vector),
	}
}

// chunkFromFields rebuilds a chunk from store hash fields.
func chunkFromFields(id string, fields map[string]string) domain.Chunk {
	page, _ := strconv.Atoi(fields[fieldPage])
	offset, _ := strconv.Atoi(fields[fieldOffset])
	return domain.Chunk{
		ID:     id,
		Source: fields[fieldSource],
		Page:   page,
		Offset: offset,
		Text:   fields[fieldText],
	}
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
