package chunk

import (
	"github.com/go-playground/validator/v10"

	"github.com/keboola/go-cluster-filesync/internal/pkg/encoding/json"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

// Codec encodes chunks to JSON, the payload is encoded as base64, so bytes are transferred exactly.
type Codec struct {
	validate *validator.Validate
}

func NewCodec() *Codec {
	return &Codec{validate: validator.New()}
}

func (c *Codec) Encode(chunk FileChunk) ([]byte, error) {
	if err := c.Validate(chunk); err != nil {
		return nil, err
	}
	return json.Encode(chunk, false)
}

func (c *Codec) Decode(data []byte) (FileChunk, error) {
	var chunk FileChunk
	if err := json.Decode(data, &chunk); err != nil {
		return FileChunk{}, NewProtocolViolationError(`cannot decode chunk: %s`, err)
	}
	if err := c.Validate(chunk); err != nil {
		return FileChunk{}, err
	}
	return chunk, nil
}

// Validate checks the struct tags and the ordinal range of a single chunk.
func (c *Codec) Validate(chunk FileChunk) error {
	if err := c.validate.Struct(chunk); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			errs := errors.NewMultiError()
			for _, fieldErr := range fieldErrs {
				errs.Append(errors.Errorf(`"%s" failed on the "%s" rule`, fieldErr.Namespace(), fieldErr.Tag()))
			}
			err = errs.ErrorOrNil()
		}
		return NewProtocolViolationError(`invalid chunk: %s`, err)
	}
	if chunk.Ordinal >= chunk.TotalChunks {
		return NewProtocolViolationError(`ordinal %d is out of the range, total chunks %d`, chunk.Ordinal, chunk.TotalChunks)
	}
	return nil
}
