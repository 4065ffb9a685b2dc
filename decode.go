package essync

import (
	"encoding/json"
	"reflect"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	timeType = reflect.TypeOf(time.Time{})
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks v against its `validate` struct tags.
func Validate(v interface{}) error {
	if err := validatorInstance().Struct(v); err != nil {
		return errors.Wrapf(err, "validating %T", v)
	}
	return nil
}

// DecodeRow decodes row into out, which must be a pointer to a struct with
// `mapstructure` tags, and validates the result. Columns holding JSON (as
// drivers return it, either bytes or text) are unmarshalled into slice, map
// and struct fields; text columns are parsed into time.Time fields.
func DecodeRow(row RawRow, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       decodeColumn,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return errors.Wrap(err, "creating decoder")
	}
	if err := dec.Decode(row.Values); err != nil {
		return errors.Wrap(err, "decoding row")
	}
	return Validate(out)
}

// decodeColumn converts the textual column values database drivers return
// into the type of the field they are decoded into.
func decodeColumn(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	var raw []byte
	switch v := data.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return data, nil
	}
	switch {
	case to == timeType:
		return ParseWatermark(string(raw))
	case to.Kind() == reflect.Slice && to.Elem().Kind() == reflect.Uint8:
		return raw, nil
	case to.Kind() == reflect.Slice, to.Kind() == reflect.Map, to.Kind() == reflect.Struct:
		ptr := reflect.New(to)
		if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
			return nil, errors.Wrapf(err, "unmarshalling %s", to)
		}
		return ptr.Elem().Interface(), nil
	default:
		return string(raw), nil
	}
}
