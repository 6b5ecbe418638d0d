package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultSize defines the fallback number of items returned when the client omits size.
	DefaultSize = 20
	// DefaultMaxSize caps the supported page size to prevent unbounded queries.
	DefaultMaxSize = 100
)

var (
	ErrInvalidPage   = errors.New("pagination: invalid page")
	ErrInvalidSize   = errors.New("pagination: invalid size")
	ErrInvalidSortBy = errors.New("pagination: invalid sortBy")
)

// Params bundles offset paging and sorting values extracted from a request.
type Params struct {
	Page   int
	Size   int
	SortBy string
	Desc   bool
}

// Offset returns the number of items to skip for the requested page.
func (p Params) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Size
}

// Options control how Parse behaves for a given handler layer.
type Options struct {
	DefaultSize       int
	MaxSize           int
	AllowedSortFields []string
	DefaultSortBy     string
	DefaultDesc       bool
}

// FromRequest parses the supported query parameters from the supplied request.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse consumes the provided query values and returns the normalised Params representation.
// Sorting accepts "field", "field:asc", or "field:desc" in the sortBy parameter.
func Parse(values url.Values, opts Options) (Params, error) {
	if values == nil {
		values = url.Values{}
	}

	page, err := parsePage(values.Get("page"))
	if err != nil {
		return Params{}, err
	}

	size, err := parseSize(values.Get("size"), opts)
	if err != nil {
		return Params{}, err
	}

	sortBy, desc, err := parseSortBy(values.Get("sortBy"), opts)
	if err != nil {
		return Params{}, err
	}

	return Params{Page: page, Size: size, SortBy: sortBy, Desc: desc}, nil
}

func parsePage(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidPage)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPage)
	}
	return value, nil
}

func parseSize(raw string, opts Options) (int, error) {
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	defaultSize := opts.DefaultSize
	if defaultSize <= 0 {
		defaultSize = DefaultSize
	}
	if defaultSize > maxSize {
		defaultSize = maxSize
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultSize, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidSize)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidSize)
	}
	if value > maxSize {
		value = maxSize
	}
	return value, nil
}

func parseSortBy(raw string, opts Options) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return opts.DefaultSortBy, opts.DefaultDesc, nil
	}
	if len(opts.AllowedSortFields) == 0 {
		return "", false, fmt.Errorf("%w: sorting not supported", ErrInvalidSortBy)
	}

	field := raw
	desc := false
	if idx := strings.IndexByte(raw, ':'); idx >= 0 {
		field = strings.TrimSpace(raw[:idx])
		switch strings.ToLower(strings.TrimSpace(raw[idx+1:])) {
		case "asc", "":
			desc = false
		case "desc":
			desc = true
		default:
			return "", false, fmt.Errorf("%w: invalid direction in %q", ErrInvalidSortBy, raw)
		}
	}

	if !isAllowedFieldName(field) {
		return "", false, fmt.Errorf("%w: invalid field %q", ErrInvalidSortBy, field)
	}
	for _, allowed := range opts.AllowedSortFields {
		if field == allowed {
			return field, desc, nil
		}
	}
	return "", false, fmt.Errorf("%w: field %q is not allowed", ErrInvalidSortBy, field)
}

func isAllowedFieldName(field string) bool {
	if field == "" {
		return false
	}
	for _, r := range field {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}
