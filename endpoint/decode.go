package endpoint

import (
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Unmarshal populates dst (must be a non-nil pointer) from the request.
//
// Supported sources:
//   - path params: r.PathValue()
//   - query params: r.URL.Query()
//   - headers: r.Header (via `header` tag)
//   - request body: r.Body (via `body` tag), read whole with ReadFullBody
//
// Supported structtags:
//   - `path:"name"`
//   - `query:"name"`
//   - `header:"name"`
//   - `body:""` on a []byte or string field
//   - `query:"-"` (or any source with "-") to ignore the field entirely
//
// Where name defaults to the struct field name lowercased (for headers, the
// field name itself, canonicalized).
//
// Scalar fields may be string, bool, or any integer kind. []string fields
// receive every value of a query parameter or header.
//
// If multiple source tags are present on the same field, precedence is: path,
// query, header, body. If no data is present for a field, it is left unchanged.
//
// The body is passed through untouched: no Content-Type checks are applied, so
// endpoints that need to report their own decoding errors can do so.
func Unmarshal(r *http.Request, dst any) error {
	if r == nil {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: nil request"))
	}
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must be a non-nil pointer"))
	}

	// Support *P where P may be a struct or pointer-to-struct.
	root := v.Elem()
	if root.Kind() == reflect.Pointer {
		if root.IsNil() {
			root.Set(reflect.New(root.Type().Elem()))
		}
		root = root.Elem()
	}
	if root.Kind() != reflect.Struct {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must point to a struct (or pointer to struct)"))
	}

	return unmarshalStruct(r, root)
}

var sources = []string{"path", "query", "header", "body"}

func unmarshalStruct(r *http.Request, sv reflect.Value) error {
	t := sv.Type()
	bodyRead := false

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		fv := sv.Field(i)

		for _, src := range sources {
			tag, ok := sf.Tag.Lookup(src)
			if !ok {
				continue
			}
			name := strings.TrimSpace(strings.Split(tag, ",")[0])
			if name == "-" {
				break
			}

			if src == "body" {
				if bodyRead {
					return newEndpointError(http.StatusInternalServerError, "", errors.Newf("endpoint: decode: multiple body fields: %s", sf.Name))
				}
				bodyRead = true
				if err := setBody(fv, r, sf.Name); err != nil {
					return err
				}
				break
			}

			if name == "" {
				name = strings.ToLower(sf.Name)
				if src == "header" {
					name = sf.Name
				}
			}
			values := lookup(r, src, name)
			if len(values) == 0 {
				// Absent for this source; fall through to the next tag.
				continue
			}
			if err := setField(fv, values, sf.Name); err != nil {
				return newEndpointError(http.StatusBadRequest, "", errors.Wrapf(err, "endpoint: decode: %s %q", src, name))
			}
			break
		}
	}
	return nil
}

func lookup(r *http.Request, src, name string) []string {
	switch src {
	case "path":
		if v := r.PathValue(name); v != "" {
			return []string{v}
		}
	case "query":
		if r.URL != nil {
			return r.URL.Query()[name]
		}
	case "header":
		return r.Header.Values(name)
	}
	return nil
}

func setBody(fv reflect.Value, r *http.Request, fieldName string) error {
	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		body = ReadFullBody(r.Body)
	}
	switch {
	case fv.Kind() == reflect.String:
		fv.SetString(string(body))
	case fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.Uint8:
		fv.SetBytes(body)
	default:
		return newEndpointError(http.StatusInternalServerError, "", errors.Newf("endpoint: decode: body field %s must be []byte or string", fieldName))
	}
	return nil
}

func setField(fv reflect.Value, values []string, fieldName string) error {
	if fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.String {
		fv.Set(reflect.ValueOf(append([]string(nil), values...)).Convert(fv.Type()))
		return nil
	}
	s := values[0]
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, fv.Type().Bits())
		if err != nil {
			return err
		}
		fv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, fv.Type().Bits())
		if err != nil {
			return err
		}
		fv.SetUint(n)
	default:
		return errors.Newf("unsupported field type %s for %s", fv.Type(), fieldName)
	}
	return nil
}
